package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned when the queue is at capacity
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueClosed is returned when operations are attempted on a closed queue
	ErrQueueClosed = errors.New("queue is closed")
)

// Queue is a bounded, thread-safe FIFO. Producers never block: an item
// that does not fit is rejected with ErrQueueFull.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	maxSize int
	closed  bool
	stats   Stats

	// closed and replaced on every enqueue to wake waiting consumers
	notEmpty chan struct{}
}

// Stats tracks queue metrics.
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	TotalDropped  int64
	CurrentSize   int
	PeakSize      int
	LastEnqueue   time.Time
	LastDequeue   time.Time
}

// New creates a queue holding at most maxSize items. A maxSize of zero or
// less means unbounded.
func New[T any](maxSize int) *Queue[T] {
	return &Queue[T]{
		maxSize:  maxSize,
		notEmpty: make(chan struct{}),
	}
}

// Enqueue appends item.
func (q *Queue[T]) Enqueue(item T) error {
	return q.EnqueueBatch([]T{item})
}

// EnqueueBatch appends items in order. Either all of them are added or,
// if they don't fit, none are.
func (q *Queue[T]) EnqueueBatch(items []T) error {
	if len(items) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.maxSize > 0 && len(q.items)+len(items) > q.maxSize {
		q.stats.TotalDropped += int64(len(items))
		return ErrQueueFull
	}

	q.items = append(q.items, items...)
	q.stats.TotalEnqueued += int64(len(items))
	q.stats.LastEnqueue = time.Now()
	if len(q.items) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.items)
	}

	close(q.notEmpty)
	q.notEmpty = make(chan struct{})
	return nil
}

// Dequeue removes and returns the oldest item, waiting until one is
// available, the queue is closed or ctx is done.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if item, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, ErrQueueClosed
		}
		wait := q.notEmpty
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-wait:
		}
	}
}

// TryDequeue removes and returns the oldest item if there is one.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero // release the reference
	q.items = q.items[1:]
	q.stats.TotalDequeued++
	q.stats.LastDequeue = time.Now()
	return item, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards every queued item and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	q.stats.TotalDropped += int64(n)
	return n
}

// Stats returns current queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := q.stats
	stats.CurrentSize = len(q.items)
	return stats
}

// Close rejects further items and wakes waiting consumers once the queue
// drains. Queued items can still be dequeued.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.notEmpty)
	q.notEmpty = make(chan struct{})
	return nil
}
