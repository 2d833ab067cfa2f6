package cache

import (
	"container/list"
	"sync"
	"time"
)

// Memory is an in-memory LRU bounded by the total size of its values.
type Memory struct {
	capacity int64
	size     int64

	items    map[string]*list.Element
	eviction *list.List

	mu    sync.Mutex
	stats Stats
}

type memoryEntry struct {
	key    string
	value  []byte
	stored time.Time
}

// NewMemory creates a memory cache holding at most capacity bytes.
func NewMemory(capacity int64) *Memory {
	return &Memory{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		stats:    Stats{Capacity: capacity},
	}
}

// Get retrieves a value and marks it most recently used.
func (c *Memory) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.eviction.MoveToFront(elem)
	c.stats.Hits++
	c.stats.LastAccess = time.Now()
	return elem.Value.(*memoryEntry).value, true
}

// Put stores a value, evicting least recently used entries to make room.
func (c *Memory) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	valueSize := int64(len(value))
	if valueSize > c.capacity {
		return ErrItemTooLarge
	}

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	for c.size+valueSize > c.capacity && c.eviction.Len() > 0 {
		c.removeElement(c.eviction.Back())
		c.stats.Evictions++
	}

	c.items[key] = c.eviction.PushFront(&memoryEntry{key: key, value: value, stored: time.Now()})
	c.size += valueSize
	return nil
}

// Delete removes an entry.
func (c *Memory) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Len returns the number of entries.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache statistics.
func (c *Memory) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.size
	stats.Items = len(c.items)
	stats.computeHitRate()
	return stats
}

// Prune removes entries stored more than maxAge ago.
func (c *Memory) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for elem := c.eviction.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*memoryEntry).stored.Before(cutoff) {
			c.removeElement(elem)
			pruned++
		}
		elem = prev
	}
	return pruned
}

// removeElement must be called with the lock held.
func (c *Memory) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(c.items, entry.key)
	c.size -= int64(len(entry.value))
}
