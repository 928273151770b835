package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDiskBackend_MissingFileDropsEntry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewStore(NewDiskBackend(dir))
	defer store.Close()

	if err := store.Put(ctx, "run.vrma", []byte("run")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, diskFileName("run.vrma"))); err != nil {
		t.Fatalf("remove clip file: %v", err)
	}

	if _, err := store.Get(ctx, "run.vrma"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, _ := store.Has(ctx, "run.vrma"); ok {
		t.Error("stale index entry survived a missing file")
	}
}

func TestDiskBackend_VersionBumpWipesClips(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := NewStore(NewDiskBackend(dir))
	if err := store.Put(ctx, "jump.vrma", []byte("jump")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	store.Close()

	if err := os.WriteFile(filepath.Join(dir, diskVersionFile), []byte("0"), 0o644); err != nil {
		t.Fatalf("write version: %v", err)
	}

	reopened := NewStore(NewDiskBackend(dir))
	defer reopened.Close()
	if n, err := reopened.Count(ctx); err != nil || n != 0 {
		t.Fatalf("Count = %d, %v; want 0 after upgrade", n, err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*"+diskFileSuffix))
	if len(matches) != 0 {
		t.Errorf("clip files left after upgrade: %v", matches)
	}
}

func TestDiskBackend_FileNamesAreStable(t *testing.T) {
	a := diskFileName("https://example.com/a.vrma")
	b := diskFileName("https://example.com/a.vrma")
	c := diskFileName("https://example.com/b.vrma")
	if a != b {
		t.Error("same key produced different file names")
	}
	if a == c {
		t.Error("different keys produced the same file name")
	}
}

func TestDiskBackend_CorruptIndexStartsEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := NewStore(NewDiskBackend(dir))
	if err := store.Put(ctx, "idle.vrma", []byte("idle")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	store.Close()

	if err := os.WriteFile(filepath.Join(dir, diskIndexFile), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}

	reopened := NewStore(NewDiskBackend(dir))
	defer reopened.Close()
	for i := 0; i < 2; i++ {
		if err := reopened.Put(ctx, "walk.vrma", []byte("walk")); err != nil {
			t.Fatalf("Put after corrupt index failed: %v", err)
		}
	}
	if n, err := reopened.Count(ctx); err != nil || n != 1 {
		t.Errorf("Count = %d, %v; want 1", n, err)
	}
	if ok, _ := reopened.Has(ctx, "idle.vrma"); ok {
		t.Error("entry from corrupt index survived")
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*"+diskFileSuffix))
	if len(matches) != 1 {
		t.Errorf("clip files = %v, want only walk.vrma", matches)
	}
}

func TestDiskBackend_FailedIndexSaveRollsBack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewStore(NewDiskBackend(dir))
	defer store.Close()

	if err := store.Put(ctx, "idle.vrma", []byte("idle")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// A non-empty directory in place of the index makes the rename fail.
	indexPath := filepath.Join(dir, diskIndexFile)
	if err := os.Remove(indexPath); err != nil {
		t.Fatalf("remove index: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(indexPath, "blocker"), 0o755); err != nil {
		t.Fatalf("create blocker: %v", err)
	}

	if err := store.Put(ctx, "wave.vrma", []byte("wave")); err == nil {
		t.Fatal("expected Put to fail when the index cannot be saved")
	}
	if ok, _ := store.Has(ctx, "wave.vrma"); ok {
		t.Error("Has reports a write that failed")
	}
	if err := store.Put(ctx, "idle.vrma", []byte("idle-v2")); err == nil {
		t.Fatal("expected overwrite to fail when the index cannot be saved")
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}
