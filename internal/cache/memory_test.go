package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemory_BasicOperations(t *testing.T) {
	cache := NewMemory(1024)

	key := "test-key"
	value := []byte("test-value")
	if err := cache.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	retrieved, ok := cache.Get(key)
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if string(retrieved) != string(value) {
		t.Errorf("Retrieved value mismatch: got %s, want %s", retrieved, value)
	}
	if stats := cache.Stats(); stats.Size != int64(len(value)) {
		t.Errorf("Size mismatch: got %d, want %d", stats.Size, len(value))
	}

	cache.Delete(key)
	if _, ok := cache.Get(key); ok {
		t.Error("Key still exists after delete")
	}
	if stats := cache.Stats(); stats.Size != 0 {
		t.Errorf("Size not zero after delete: %d", stats.Size)
	}
}

func TestMemory_LRUEviction(t *testing.T) {
	cache := NewMemory(100)

	for i := 0; i < 5; i++ {
		if err := cache.Put(fmt.Sprintf("key-%d", i), make([]byte, 20)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	// key-0 and key-1 become recently used
	cache.Get("key-0")
	cache.Get("key-1")

	if err := cache.Put("key-new", make([]byte, 30)); err != nil {
		t.Fatalf("Put failed for new key: %v", err)
	}

	for _, key := range []string{"key-0", "key-1", "key-4", "key-new"} {
		if _, ok := cache.Get(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
	for _, key := range []string{"key-2", "key-3"} {
		if _, ok := cache.Get(key); ok {
			t.Errorf("%s should have been evicted", key)
		}
	}
	if stats := cache.Stats(); stats.Evictions != 2 {
		t.Errorf("evictions = %d, want 2", stats.Evictions)
	}
}

func TestMemory_ItemTooLarge(t *testing.T) {
	cache := NewMemory(100)
	if err := cache.Put("large", make([]byte, 200)); err != ErrItemTooLarge {
		t.Errorf("Expected ErrItemTooLarge, got %v", err)
	}
	if cache.Len() != 0 {
		t.Error("rejected item should not be stored")
	}
}

func TestMemory_UpdateExisting(t *testing.T) {
	cache := NewMemory(1024)

	_ = cache.Put("k", []byte("initial"))
	_ = cache.Put("k", []byte("updated value"))

	got, _ := cache.Get("k")
	if string(got) != "updated value" {
		t.Errorf("value = %q, want %q", got, "updated value")
	}
	stats := cache.Stats()
	if stats.Size != int64(len("updated value")) || stats.Items != 1 {
		t.Errorf("stats = %+v, want one item of %d bytes", stats, len("updated value"))
	}
}

func TestMemory_Stats(t *testing.T) {
	cache := NewMemory(1024)
	_ = cache.Put("key1", []byte("value1"))

	cache.Get("key1")
	cache.Get("key1")
	cache.Get("missing")

	stats := cache.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 2/1", stats.Hits, stats.Misses)
	}
	if want := 2.0 / 3.0; stats.HitRate != want {
		t.Errorf("hit rate = %v, want %v", stats.HitRate, want)
	}
	if stats.Capacity != 1024 {
		t.Errorf("capacity = %d, want 1024", stats.Capacity)
	}
}

func TestMemory_Prune(t *testing.T) {
	cache := NewMemory(1024)
	_ = cache.Put("old", []byte("x"))
	time.Sleep(20 * time.Millisecond)
	_ = cache.Put("new", []byte("y"))

	if n := cache.Prune(10 * time.Millisecond); n != 1 {
		t.Errorf("pruned %d entries, want 1", n)
	}
	if _, ok := cache.Get("old"); ok {
		t.Error("old entry should be pruned")
	}
	if _, ok := cache.Get("new"); !ok {
		t.Error("new entry should survive")
	}
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	cache := NewMemory(10 * 1024)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key-%d-%d", id, i%10)
				_ = cache.Put(key, []byte(key))
				cache.Get(key)
				if i%7 == 0 {
					cache.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	if stats := cache.Stats(); stats.Size > 10*1024 {
		t.Errorf("size %d exceeds capacity", stats.Size)
	}
}

func BenchmarkMemory_PutGet(b *testing.B) {
	cache := NewMemory(100 * 1024 * 1024)
	value := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("key-%d", i%1000)
		_ = cache.Put(key, value)
		cache.Get(key)
	}
}
