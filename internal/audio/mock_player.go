package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockPlayer implements Player for testing purposes.
// It simulates playback timing without producing sound.
type MockPlayer struct {
	mu        sync.Mutex
	callbacks MockCallbacks
	volume    float64
	current   *mockPlayback
	played    []Clip
	closed    bool

	// Test configuration
	delayFactor float64       // scales simulated clip duration
	duration    time.Duration // overrides the clip's duration when set
	failOn      map[int]error // play number (1-based) -> error

	// Metrics for testing
	playCount atomic.Int64
	stopCount atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay  func(clip Clip)
	OnStop  func()
	OnClose func()
}

// DefaultMockPlayer creates a new mock player with default settings.
func DefaultMockPlayer() *MockPlayer {
	return &MockPlayer{
		volume:      1.0,
		delayFactor: 1.0,
		failOn:      make(map[int]error),
	}
}

// NewMockPlayer creates a new mock player with custom callbacks.
func NewMockPlayer(callbacks MockCallbacks) *MockPlayer {
	mp := DefaultMockPlayer()
	mp.callbacks = callbacks
	return mp
}

// Play records clip and simulates playing it for its duration.
func (mp *MockPlayer) Play(ctx context.Context, clip Clip) (Playback, error) {
	mp.mu.Lock()
	if mp.closed {
		mp.mu.Unlock()
		return nil, ErrClosed
	}
	n := int(mp.playCount.Add(1))
	if err, ok := mp.failOn[n]; ok {
		mp.mu.Unlock()
		return nil, err
	}
	if mp.current != nil {
		mp.current.stop()
	}

	d := mp.duration
	if d == 0 {
		d = time.Duration(float64(clip.Duration()) * mp.delayFactor)
	}
	pb := newMockPlayback(mp, d)
	mp.current = pb
	mp.played = append(mp.played, clip)
	onPlay := mp.callbacks.OnPlay
	mp.mu.Unlock()

	if onPlay != nil {
		onPlay(clip)
	}
	go pb.run(ctx)
	return pb, nil
}

// SetVolume records the volume.
func (mp *MockPlayer) SetVolume(volume float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.volume = volume
}

// Close stops playback and rejects further clips.
func (mp *MockPlayer) Close() error {
	mp.mu.Lock()
	if mp.current != nil {
		mp.current.stop()
		mp.current = nil
	}
	mp.closed = true
	onClose := mp.callbacks.OnClose
	mp.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}

// Test helper methods

// SetDelayFactor scales simulated durations. 0.5 plays twice as fast.
func (mp *MockPlayer) SetDelayFactor(factor float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.delayFactor = factor
}

// SetAudioDuration makes every clip last d regardless of its length.
func (mp *MockPlayer) SetAudioDuration(d time.Duration) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.duration = d
}

// FailOn makes the n-th call to Play (1-based) return err.
func (mp *MockPlayer) FailOn(n int, err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.failOn[n] = err
}

// GetVolume returns the current volume for testing.
func (mp *MockPlayer) GetVolume() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.volume
}

// Played returns the clips passed to Play, in order.
func (mp *MockPlayer) Played() []Clip {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([]Clip, len(mp.played))
	copy(out, mp.played)
	return out
}

// IsPlaying reports whether a clip is in progress.
func (mp *MockPlayer) IsPlaying() bool {
	mp.mu.Lock()
	pb := mp.current
	mp.mu.Unlock()
	if pb == nil {
		return false
	}
	select {
	case <-pb.done:
		return false
	default:
		return true
	}
}

// GetMetrics returns playback metrics for testing.
func (mp *MockPlayer) GetMetrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		PlayCount: mp.playCount.Load(),
		StopCount: mp.stopCount.Load(),
	}
}

// MockPlayerMetrics contains playback metrics for testing.
type MockPlayerMetrics struct {
	PlayCount int64
	StopCount int64
}

type mockPlayback struct {
	player   *MockPlayer
	duration time.Duration
	stopCh   chan struct{}
	done     chan struct{}
	once     sync.Once
	stopped  atomic.Bool
}

func newMockPlayback(mp *MockPlayer, d time.Duration) *mockPlayback {
	return &mockPlayback{
		player:   mp,
		duration: d,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (pb *mockPlayback) run(ctx context.Context) {
	timer := time.NewTimer(pb.duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		pb.finish()
	case <-ctx.Done():
		pb.stop()
	case <-pb.stopCh:
	}
}

// stop ends the playback synchronously; safe to call more than once.
func (pb *mockPlayback) stop() {
	if !pb.stopped.CompareAndSwap(false, true) {
		return
	}
	close(pb.stopCh)
	select {
	case <-pb.done:
		// already finished on its own
		return
	default:
	}
	pb.player.stopCount.Add(1)
	pb.finish()
	if cb := pb.player.callbacks.OnStop; cb != nil {
		cb()
	}
}

func (pb *mockPlayback) finish() {
	pb.once.Do(func() { close(pb.done) })
}

func (pb *mockPlayback) Stop() { pb.stop() }

func (pb *mockPlayback) Done() <-chan struct{} { return pb.done }

func (pb *mockPlayback) Err() error { return nil }

// ErrSimulated is a ready-made error for FailOn.
var ErrSimulated = fmt.Errorf("%w: simulated", ErrPlayback)

var _ Player = (*MockPlayer)(nil)
