package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileCacheSetAndGet(t *testing.T) {
	fc, _ := newTestFileCache(t, 5*time.Second)
	payload := []byte{0x1a, 0x00, 0xff, 'p', 'b', 'f'}

	path, err := fc.Set("tile", payload, ".pbf")
	if err != nil {
		t.Fatalf("set error: %v", err)
	}

	got, ok := fc.Get("tile")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got != path {
		t.Fatalf("path mismatch: %s vs %s", got, path)
	}
	body, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if !bytes.Equal(body, payload) {
		t.Fatalf("cached payload mismatch: %v", body)
	}
}

func TestFileCacheExpiryDeletesFile(t *testing.T) {
	fc, clock := newTestFileCache(t, 5*time.Second)

	path, err := fc.Set("bar", []byte("payload"), ".bin")
	if err != nil {
		t.Fatalf("set error: %v", err)
	}

	clock.Advance(5 * time.Second)
	if _, ok := fc.Get("bar"); ok {
		t.Fatalf("entry should be expired")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expired file should be deleted, stat err=%v", err)
	}
	if fc.Len() != 0 {
		t.Fatalf("expired entry should leave the index")
	}
}

func TestFileCacheHealsMissingFile(t *testing.T) {
	fc, _ := newTestFileCache(t, time.Minute)
	path, err := fc.Set("gone", []byte("x"), "")
	if err != nil {
		t.Fatalf("set error: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove error: %v", err)
	}

	if _, ok := fc.Get("gone"); ok {
		t.Fatalf("missing file should be treated as a miss")
	}
	if fc.Len() != 0 {
		t.Fatalf("stale index entry should be removed")
	}
}

func TestFileCacheNamesFilesByDigest(t *testing.T) {
	fc, _ := newTestFileCache(t, time.Minute)
	key := `{"endpoint":"XKT001","format":"geojson","params":{"area":"13/../x"}}`

	path, err := fc.Set(key, []byte("{}"), "geojson")
	if err != nil {
		t.Fatalf("set error: %v", err)
	}

	want := filepath.Join(fc.Dir(), Digest(key)+".geojson")
	if path != want {
		t.Fatalf("expected %s, got %s", want, path)
	}
	if len(Digest(key)) != 64 {
		t.Fatalf("digest should be sha256 hex")
	}
}

func TestFileCachePurgeExpired(t *testing.T) {
	fc, clock := newTestFileCache(t, 10*time.Second)
	oldPath, _ := fc.Set("old", []byte("1"), ".bin")
	clock.Advance(6 * time.Second)
	newPath, _ := fc.Set("new", []byte("2"), ".bin")
	clock.Advance(5 * time.Second)

	if removed := fc.PurgeExpired(); removed != 1 {
		t.Fatalf("expected 1 purged entry, got %d", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("purged file should be deleted")
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("fresh file should remain: %v", err)
	}
	if fc.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", fc.Len())
	}
}

func TestFileCacheClear(t *testing.T) {
	fc, _ := newTestFileCache(t, time.Minute)
	p1, _ := fc.Set("a", []byte("1"), ".geojson")
	p2, _ := fc.Set("b", []byte("2"), ".mvt")
	if err := os.Remove(p2); err != nil {
		t.Fatalf("remove error: %v", err)
	}

	fc.Clear()

	if fc.Len() != 0 {
		t.Fatalf("clear should empty the index")
	}
	if _, err := os.Stat(p1); !os.IsNotExist(err) {
		t.Fatalf("clear should delete cached files")
	}
}

func TestFileCacheOverwriteWithNewSuffixRemovesOldFile(t *testing.T) {
	fc, _ := newTestFileCache(t, time.Minute)
	first, _ := fc.Set("k", []byte("1"), ".bin")
	second, err := fc.Set("k", []byte("2"), ".pbf")
	if err != nil {
		t.Fatalf("set error: %v", err)
	}
	if first == second {
		t.Fatalf("expected suffix to change path")
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Fatalf("previous file should be removed")
	}
}

func TestFileCacheRejectsInvalidTTL(t *testing.T) {
	_, err := NewFileCache(FileCacheOptions{Directory: t.TempDir(), TTL: 0})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestFileCacheCreatesNestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "files")
	if _, err := NewFileCache(FileCacheOptions{Directory: dir, TTL: time.Second}); err != nil {
		t.Fatalf("new file cache: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory to be created: %v", err)
	}
}

func TestNormalizeSuffix(t *testing.T) {
	testCases := map[string]string{
		"":        ".bin",
		"geojson": ".geojson",
		".mvt":    ".mvt",
		"  pbf  ": ".pbf",
	}
	for in, want := range testCases {
		if got := NormalizeSuffix(in); got != want {
			t.Fatalf("NormalizeSuffix(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestStartPurgerStopsWithContext(t *testing.T) {
	fc, clock := newTestFileCache(t, time.Second)
	path, _ := fc.Set("k", []byte("x"), "")
	clock.Advance(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartPurger(ctx, fc, 5*time.Millisecond, nil)

	deadline := time.Now().Add(2 * time.Second)
	for fc.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("purger did not remove expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("purger should delete expired file")
	}
}

func TestFileCacheLeavesNoTempFiles(t *testing.T) {
	fc, _ := newTestFileCache(t, time.Minute)
	if _, err := fc.Set("k", []byte("x"), ".bin"); err != nil {
		t.Fatalf("set error: %v", err)
	}
	entries, err := os.ReadDir(fc.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".cache-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

// newTestFileCache returns a FileCache backed by a temporary directory and a manual clock.
func newTestFileCache(t *testing.T, ttl time.Duration) (*FileCache, *ManualClock) {
	t.Helper()
	clock := NewManualClock(0)
	fc, err := NewFileCache(FileCacheOptions{
		Directory: filepath.Join(t.TempDir(), "bin"),
		TTL:       ttl,
		Clock:     clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to create file cache: %v", err)
	}
	return fc, clock
}
