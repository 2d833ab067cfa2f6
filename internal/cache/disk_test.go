package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDisk_PutGetCompressed(t *testing.T) {
	dir := t.TempDir()
	dc, err := OpenDisk(dir, 1<<20, compressionLevel)
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	defer dc.Close()

	// silence compresses well
	value := make([]byte, 64*1024)
	if err := dc.Put("silence", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok := dc.Get("silence")
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if !bytes.Equal(got, value) {
		t.Error("value changed after round trip")
	}
	if stats := dc.Stats(); stats.Size >= int64(len(value)) {
		t.Errorf("on-disk size %d should be smaller than %d", stats.Size, len(value))
	}
}

func TestDisk_SmallValuesStoredRaw(t *testing.T) {
	dc, err := OpenDisk(t.TempDir(), 1<<20, compressionLevel)
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	defer dc.Close()

	_ = dc.Put("small", []byte("tiny"))
	if stats := dc.Stats(); stats.Size != 4 {
		t.Errorf("size = %d, want 4", stats.Size)
	}
}

func TestDisk_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	dc, err := OpenDisk(dir, 1<<20, compressionLevel)
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	_ = dc.Put("a", []byte("alpha"))
	_ = dc.Put("b", []byte("bravo"))
	if err := dc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := dc.Put("c", []byte("charlie")); err != ErrClosed {
		t.Errorf("Put after Close = %v, want ErrClosed", err)
	}

	// a file removed while closed is forgotten on reopen
	if err := os.Remove(filepath.Join(dir, fileName("b"))); err != nil {
		t.Fatalf("remove: %v", err)
	}

	reopened, err := OpenDisk(dir, 1<<20, compressionLevel)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if got, ok := reopened.Get("a"); !ok || string(got) != "alpha" {
		t.Errorf("Get(a) = %q, %v; want alpha", got, ok)
	}
	if _, ok := reopened.Get("b"); ok {
		t.Error("entry with a missing file should be dropped")
	}
	if stats := reopened.Stats(); stats.Items != 1 || stats.Size != 5 {
		t.Errorf("stats = %+v, want 1 item of 5 bytes", stats)
	}
}

func TestDisk_CorruptIndexStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, indexFile), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	dc, err := OpenDisk(dir, 1<<20, compressionLevel)
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	defer dc.Close()

	if stats := dc.Stats(); stats.Items != 0 {
		t.Errorf("items = %d, want 0", stats.Items)
	}
}

func TestDisk_EvictsLeastRecentlyAccessed(t *testing.T) {
	dc, err := OpenDisk(t.TempDir(), 30, compressionLevel)
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	defer dc.Close()

	_ = dc.Put("first", bytes.Repeat([]byte("1"), 10))
	time.Sleep(5 * time.Millisecond)
	_ = dc.Put("second", bytes.Repeat([]byte("2"), 10))
	time.Sleep(5 * time.Millisecond)
	dc.Get("first")

	if err := dc.Put("third", bytes.Repeat([]byte("3"), 15)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, ok := dc.Get("second"); ok {
		t.Error("second should have been evicted")
	}
	if _, ok := dc.Get("first"); !ok {
		t.Error("first was accessed recently and should remain")
	}
	if err := dc.Put("huge", make([]byte, 31)); err != ErrItemTooLarge {
		t.Errorf("Put(huge) = %v, want ErrItemTooLarge", err)
	}
}

func TestDisk_RemoveOlderThan(t *testing.T) {
	dc, err := OpenDisk(t.TempDir(), 1<<20, compressionLevel)
	if err != nil {
		t.Fatalf("OpenDisk failed: %v", err)
	}
	defer dc.Close()

	_ = dc.Put("old", []byte("x"))
	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_ = dc.Put("new", []byte("y"))

	if n := dc.RemoveOlderThan(cutoff); n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if _, ok := dc.Get("new"); !ok {
		t.Error("new entry should survive")
	}
}
