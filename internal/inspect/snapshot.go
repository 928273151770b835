package inspect

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/dgnsrekt/animcache/internal/cache"
	"github.com/klauspost/compress/zstd"
)

// snapshotVersion identifies the export stream layout.
const snapshotVersion = 1

// ErrSnapshotVersion is returned when importing a stream written by an
// incompatible version.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

type snapshotHeader struct {
	Version int
	Count   int
}

type snapshotRecord struct {
	Key     string
	Payload []byte
}

// Export writes every record as a zstd-compressed gob stream and returns
// the number of records written.
func (i *Inspector) Export(ctx context.Context, w io.Writer) (int, error) {
	infos, err := i.store.List(ctx)
	if err != nil {
		return 0, err
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	g := gob.NewEncoder(enc)
	if err := g.Encode(snapshotHeader{Version: snapshotVersion, Count: len(infos)}); err != nil {
		_ = enc.Close()
		return 0, fmt.Errorf("write snapshot header: %w", err)
	}

	written := 0
	for _, info := range infos {
		rec, err := i.store.Record(ctx, info.Key)
		if errors.Is(err, cache.ErrNotFound) {
			// Cleared between List and Record.
			continue
		}
		if err != nil {
			_ = enc.Close()
			return written, err
		}
		if err := g.Encode(snapshotRecord{Key: rec.Key, Payload: rec.Payload}); err != nil {
			_ = enc.Close()
			return written, fmt.Errorf("write snapshot record: %w", err)
		}
		written++
	}

	// Terminates the stream when fewer records than announced were written.
	if err := g.Encode(snapshotRecord{}); err != nil {
		_ = enc.Close()
		return written, fmt.Errorf("write snapshot trailer: %w", err)
	}
	if err := enc.Close(); err != nil {
		return written, fmt.Errorf("flush snapshot: %w", err)
	}
	return written, nil
}

// Import reads a stream produced by Export and stores every record. The
// records get a fresh write time.
func Import(ctx context.Context, store *cache.Store, r io.Reader) (int, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	g := gob.NewDecoder(dec)
	var header snapshotHeader
	if err := g.Decode(&header); err != nil {
		return 0, fmt.Errorf("read snapshot header: %w", err)
	}
	if header.Version != snapshotVersion {
		return 0, fmt.Errorf("%w: %d", ErrSnapshotVersion, header.Version)
	}

	imported := 0
	for imported < header.Count {
		var rec snapshotRecord
		if err := g.Decode(&rec); err != nil {
			return imported, fmt.Errorf("read snapshot record: %w", err)
		}
		if rec.Key == "" {
			break
		}
		if err := store.Put(ctx, rec.Key, rec.Payload); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
