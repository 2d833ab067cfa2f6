package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	indexFile = "cache.index"

	// payloads smaller than this are stored as-is
	compressThreshold = 1024
)

// Disk is a persistent cache. Each value lives in its own file, compressed
// with zstd when that makes it smaller; a gob-encoded index maps keys to
// files and is rewritten on Close.
type Disk struct {
	basePath string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu     sync.Mutex
	stats  Stats
	closed bool
}

type diskEntry struct {
	Key          string
	FileName     string
	Size         int64 // on disk
	OriginalSize int64
	Timestamp    time.Time
	LastAccess   time.Time
	Compressed   bool
}

// OpenDisk opens or creates a disk cache in basePath. A missing or
// unreadable index starts the cache empty.
func OpenDisk(basePath string, capacity int64, level int) (*Disk, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &Disk{
		basePath: basePath,
		capacity: capacity,
		encoder:  encoder,
		decoder:  decoder,
		index:    make(map[string]*diskEntry),
		stats:    Stats{Capacity: capacity},
	}
	if err := dc.loadIndex(); err != nil {
		dc.index = make(map[string]*diskEntry)
	}
	dc.dropMissing()
	return dc, nil
}

// Get retrieves a value. Entries whose file is gone or corrupt are dropped
// and reported as misses.
func (dc *Disk) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok || dc.closed {
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(dc.path(entry))
	if err == nil && entry.Compressed {
		data, err = dc.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		dc.remove(entry)
		dc.stats.Misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	dc.stats.Hits++
	dc.stats.LastAccess = entry.LastAccess
	return data, true
}

// Put stores a value, evicting least recently accessed entries to make room.
func (dc *Disk) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return ErrClosed
	}

	data, compressed := value, false
	if len(value) > compressThreshold {
		if packed := dc.encoder.EncodeAll(value, nil); len(packed) < len(value) {
			data, compressed = packed, true
		}
	}
	diskSize := int64(len(data))
	if diskSize > dc.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := dc.index[key]; ok {
		dc.remove(existing)
	}
	for dc.size+diskSize > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	now := time.Now()
	entry := &diskEntry{
		Key:          key,
		FileName:     fileName(key),
		Size:         diskSize,
		OriginalSize: int64(len(value)),
		Timestamp:    now,
		LastAccess:   now,
		Compressed:   compressed,
	}
	if err := writeFile(dc.path(entry), data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	dc.index[key] = entry
	dc.size += diskSize
	return nil
}

// Delete removes an entry.
func (dc *Disk) Delete(key string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if entry, ok := dc.index[key]; ok {
		dc.remove(entry)
	}
}

// RemoveOlderThan removes entries stored before cutoff.
func (dc *Disk) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for _, entry := range dc.index {
		if entry.Timestamp.Before(cutoff) {
			dc.remove(entry)
			removed++
		}
	}
	return removed
}

// Stats returns cache statistics. Size is measured on disk.
func (dc *Disk) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stats := dc.stats
	stats.Size = dc.size
	stats.Items = len(dc.index)
	stats.computeHitRate()
	return stats
}

// Close saves the index. The cache rejects writes afterwards.
func (dc *Disk) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return nil
	}
	dc.closed = true
	dc.decoder.Close()
	err := dc.saveIndex()
	return errors.Join(err, dc.encoder.Close())
}

func fileName(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16]) + ".cache"
}

func (dc *Disk) path(entry *diskEntry) string {
	return filepath.Join(dc.basePath, entry.FileName)
}

// remove must be called with the lock held.
func (dc *Disk) remove(entry *diskEntry) {
	_ = os.Remove(dc.path(entry))
	dc.size -= entry.Size
	delete(dc.index, entry.Key)
}

func (dc *Disk) evictOldest() {
	var oldest *diskEntry
	for _, entry := range dc.index {
		if oldest == nil || entry.LastAccess.Before(oldest.LastAccess) {
			oldest = entry
		}
	}
	if oldest != nil {
		dc.remove(oldest)
		dc.stats.Evictions++
	}
}

// dropMissing forgets index entries whose file was deleted behind our back
// and recomputes the size.
func (dc *Disk) dropMissing() {
	dc.size = 0
	for key, entry := range dc.index {
		if _, err := os.Stat(dc.path(entry)); err != nil {
			delete(dc.index, key)
			continue
		}
		dc.size += entry.Size
	}
}

func writeFile(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	_, err = file.Write(data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}

func (dc *Disk) loadIndex() error {
	file, err := os.Open(filepath.Join(dc.basePath, indexFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close()

	return gob.NewDecoder(file).Decode(&dc.index)
}

func (dc *Disk) saveIndex() error {
	indexPath := filepath.Join(dc.basePath, indexFile)
	tempPath := indexPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(file).Encode(dc.index)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, indexPath)
}
