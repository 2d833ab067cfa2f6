package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned when writing to a closed cache.
	ErrClosed = errors.New("cache closed")
)

// Stats holds cache counters.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64

	LastAccess time.Time
}

func (s *Stats) computeHitRate() {
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
}

// Key derives the cache key for one synthesis request. Every setting that
// changes the produced audio is part of the key.
func Key(text, voice, language string, speed, pitch float64) string {
	data := fmt.Sprintf("%s|%s|%s|%.2f|%.2f", text, voice, language, speed, pitch)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}
