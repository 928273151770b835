package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	dir := t.TempDir()
	return map[string]Backend{
		"sqlite": NewSQLiteBackend(filepath.Join(dir, "clips.db")),
		"disk":   NewDiskBackend(filepath.Join(dir, "disk")),
		"memory": NewMemoryBackend(),
	}
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(backend)
			defer store.Close()

			payload := []byte{0x67, 0x6c, 0x54, 0x46, 0x00, 0xff}
			if err := store.Put(ctx, "https://cdn.example.com/idle.vrma", payload); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			got, err := store.Get(ctx, "https://cdn.example.com/idle.vrma")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("payload mismatch: got %v, want %v", got, payload)
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(backend)
			defer store.Close()

			_, err := store.Get(ctx, "missing.bin")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			ok, err := store.Has(ctx, "missing.bin")
			if err != nil {
				t.Fatalf("Has failed: %v", err)
			}
			if ok {
				t.Error("Has returned true for missing key")
			}
		})
	}
}

func TestStore_OverwriteReplacesRecord(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			store := NewStore(backend, WithClock(func() time.Time { return now }))
			defer store.Close()

			if err := store.Put(ctx, "a.bin", []byte("first")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			now = now.Add(time.Minute)
			if err := store.Put(ctx, "a.bin", []byte("second")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			rec, err := store.Record(ctx, "a.bin")
			if err != nil {
				t.Fatalf("Record failed: %v", err)
			}
			if string(rec.Payload) != "second" {
				t.Errorf("payload = %q, want %q", rec.Payload, "second")
			}
			if !rec.WrittenAt.Equal(now) {
				t.Errorf("WrittenAt = %v, want %v", rec.WrittenAt, now)
			}

			n, err := store.Count(ctx)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if n != 1 {
				t.Errorf("Count = %d, want 1", n)
			}
		})
	}
}

func TestStore_RepeatedPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(backend)
			defer store.Close()

			payload := []byte("clip")
			for i := 0; i < 3; i++ {
				if err := store.Put(ctx, "k", payload); err != nil {
					t.Fatalf("Put %d failed: %v", i, err)
				}
			}

			got, err := store.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("payload mismatch: got %q", got)
			}
			if n, _ := store.Count(ctx); n != 1 {
				t.Errorf("Count = %d, want 1", n)
			}
		})
	}
}

func TestStore_PayloadIsCopied(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend())

	payload := []byte("abc")
	if err := store.Put(ctx, "k", payload); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	payload[0] = 'z'

	got, _ := store.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored payload changed through caller slice: %q", got)
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(backend)
			defer store.Close()

			keys := []string{"a.bin", "b.bin", "c.bin"}
			for _, k := range keys {
				if err := store.Put(ctx, k, []byte(k)); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}
			if n, _ := store.Count(ctx); n != 3 {
				t.Fatalf("Count = %d, want 3", n)
			}

			if err := store.Clear(ctx); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}

			n, err := store.Count(ctx)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if n != 0 {
				t.Errorf("Count after clear = %d, want 0", n)
			}
			for _, k := range keys {
				if ok, _ := store.Has(ctx, k); ok {
					t.Errorf("Has(%q) true after clear", k)
				}
				if _, err := store.Get(ctx, k); !errors.Is(err, ErrNotFound) {
					t.Errorf("Get(%q) after clear: %v", k, err)
				}
			}
		})
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
			store := NewStore(backend, WithClock(func() time.Time { return now }))
			defer store.Close()

			for i, k := range []string{"old", "mid", "new"} {
				now = now.Add(time.Duration(i+1) * time.Second)
				if err := store.Put(ctx, k, bytes.Repeat([]byte("x"), i+1)); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}

			infos, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(infos) != 3 {
				t.Fatalf("List returned %d entries, want 3", len(infos))
			}
			want := []string{"new", "mid", "old"}
			for i, info := range infos {
				if info.Key != want[i] {
					t.Errorf("entry %d = %q, want %q", i, info.Key, want[i])
				}
			}
			if infos[0].Size != 3 {
				t.Errorf("size of newest = %d, want 3", infos[0].Size)
			}
		})
	}
}

func TestStore_InvalidKey(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	if err := store.Put(context.Background(), "", []byte("x")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cases := map[string]func() Backend{
		"sqlite": func() Backend { return NewSQLiteBackend(filepath.Join(dir, "clips.db")) },
		"disk":   func() Backend { return NewDiskBackend(filepath.Join(dir, "disk")) },
	}
	for name, mk := range cases {
		t.Run(name, func(t *testing.T) {
			first := NewStore(mk())
			if err := first.Put(ctx, "walk.vrma", []byte("walk")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := first.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			second := NewStore(mk())
			defer second.Close()
			got, err := second.Get(ctx, "walk.vrma")
			if err != nil {
				t.Fatalf("Get after reopen failed: %v", err)
			}
			if string(got) != "walk" {
				t.Errorf("payload = %q, want %q", got, "walk")
			}
		})
	}
}

func TestStore_ReinitAfterClose(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewSQLiteBackend(filepath.Join(t.TempDir(), "clips.db")))
	if err := store.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ok, err := store.Has(ctx, "k")
	if err != nil {
		t.Fatalf("Has after close failed: %v", err)
	}
	if !ok {
		t.Error("record lost after close and lazy reopen")
	}
	store.Close()
}

func TestSQLiteBackend_SchemaVersion(t *testing.T) {
	ctx := context.Background()
	backend := NewSQLiteBackend(filepath.Join(t.TempDir(), "clips.db"))
	store := NewStore(backend)
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	// Second Init reuses the connection.
	if err := store.Init(ctx); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}

	v, err := backend.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if v != SchemaVersion {
		t.Errorf("user_version = %d, want %d", v, SchemaVersion)
	}
}

// flakyBackend fails Open a fixed number of times.
func TestSQLiteBackend_PayloadNotNull(t *testing.T) {
	ctx := context.Background()
	backend := NewSQLiteBackend(filepath.Join(t.TempDir(), "clips.db"))
	store := NewStore(backend)
	defer store.Close()

	if err := store.Put(ctx, "empty.vrma", nil); err != nil {
		t.Fatalf("Put with nil payload failed: %v", err)
	}
	got, err := store.Get(ctx, "empty.vrma")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("payload = %q, want empty", got)
	}

	db, err := backend.conn()
	if err != nil {
		t.Fatalf("conn failed: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO clips (key, payload, written_at) VALUES ('null.vrma', NULL, 1)`); err == nil {
		t.Error("NULL payload accepted by schema")
	}
}

type flakyBackend struct {
	*MemoryBackend
	failures int
	opens    int
}

func (f *flakyBackend) Open(ctx context.Context) error {
	f.opens++
	if f.opens <= f.failures {
		return fmt.Errorf("storage access denied")
	}
	return f.MemoryBackend.Open(ctx)
}

func TestStore_InitFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{MemoryBackend: NewMemoryBackend(), failures: 1}
	store := NewStore(backend)

	if err := store.Put(ctx, "k", []byte("v")); err == nil {
		t.Fatal("expected first Put to fail while init fails")
	}

	if err := store.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("second Put should retry init: %v", err)
	}
	if backend.opens != 2 {
		t.Errorf("Open called %d times, want 2", backend.opens)
	}

	// Further operations reuse the open backend.
	if _, err := store.Count(ctx); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if backend.opens != 2 {
		t.Errorf("Open called %d times after init, want 2", backend.opens)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewSQLiteBackend(filepath.Join(t.TempDir(), "clips.db")))
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("clip-%d", i%4)
			if err := store.Put(ctx, key, []byte(key)); err != nil {
				t.Errorf("Put failed: %v", err)
				return
			}
			if _, err := store.Get(ctx, key); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if n, _ := store.Count(ctx); n != 4 {
		t.Errorf("Count = %d, want 4", n)
	}
}

func TestStore_CloseDuringOperations(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(backend)
			defer store.Close()

			stop := make(chan struct{})
			closed := make(chan struct{})
			go func() {
				defer close(closed)
				for {
					select {
					case <-stop:
						return
					default:
						_ = store.Close()
					}
				}
			}()

			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					for j := 0; j < 25; j++ {
						key := fmt.Sprintf("clip-%d-%d", i, j)
						if err := store.Put(ctx, key, []byte(key)); err != nil {
							t.Errorf("Put failed: %v", err)
							return
						}
						if _, err := store.Has(ctx, key); err != nil {
							t.Errorf("Has failed: %v", err)
							return
						}
					}
				}(i)
			}
			wg.Wait()
			close(stop)
			<-closed

			if n, err := store.Count(ctx); err != nil || n != 100 {
				t.Errorf("Count = %d, %v; want 100", n, err)
			}
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(&Config{Backend: "redis", Path: t.TempDir()}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
