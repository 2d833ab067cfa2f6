package cache

import (
	"fmt"
	"time"

	"github.com/carlos-ai/carlos/internal/config"
	"github.com/charmbracelet/log"
)

// compressionLevel is zstd's default, balancing speed and size.
const compressionLevel = 3

// Cache combines a memory LRU with an optional disk store. Disk hits are
// promoted to memory.
type Cache struct {
	memory *Memory
	disk   *Disk
	logger *log.Logger
}

// Open builds the cache described by cfg. An empty Dir or zero Disk
// capacity keeps the cache in memory only. Expired disk entries are
// removed on open.
func Open(cfg config.CacheConfig, logger *log.Logger) (*Cache, error) {
	if logger == nil {
		logger = log.Default()
	}
	c := &Cache{
		memory: NewMemory(cfg.Memory),
		logger: logger,
	}

	if cfg.Dir != "" && cfg.Disk > 0 {
		disk, err := OpenDisk(cfg.Dir, cfg.Disk, compressionLevel)
		if err != nil {
			return nil, fmt.Errorf("open audio cache: %w", err)
		}
		c.disk = disk
		if cfg.TTL > 0 {
			if n := disk.RemoveOlderThan(time.Now().Add(-cfg.TTL)); n > 0 {
				logger.Debug("Removed expired audio", "entries", n)
			}
		}
	}
	return c, nil
}

// Get looks the key up in memory, then on disk.
func (c *Cache) Get(key string) ([]byte, bool) {
	if data, ok := c.memory.Get(key); ok {
		return data, true
	}
	if c.disk == nil {
		return nil, false
	}
	data, ok := c.disk.Get(key)
	if !ok {
		return nil, false
	}
	// an item too large for memory is still served from disk
	_ = c.memory.Put(key, data)
	return data, true
}

// Put stores data in both levels. A failure of one level is logged and
// does not affect the other.
func (c *Cache) Put(key string, data []byte) {
	if err := c.memory.Put(key, data); err != nil {
		c.logger.Debug("Audio not cached in memory", "bytes", len(data), "err", err)
	}
	if c.disk != nil {
		if err := c.disk.Put(key, data); err != nil {
			c.logger.Warn("Failed to cache audio on disk", "err", err)
		}
	}
}

// Stats returns the memory and disk statistics. Disk stats are zero when
// the cache has no disk level.
func (c *Cache) Stats() (memory, disk Stats) {
	memory = c.memory.Stats()
	if c.disk != nil {
		disk = c.disk.Stats()
	}
	return memory, disk
}

// Close persists the disk index.
func (c *Cache) Close() error {
	if c.disk == nil {
		return nil
	}
	return c.disk.Close()
}
