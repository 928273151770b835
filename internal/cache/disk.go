package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	diskIndexFile   = "clips.index"
	diskVersionFile = "VERSION"
	diskFileSuffix  = ".clip"
)

// DiskBackend stores one file per clip plus a gob-encoded index. It is
// useful where a database file is unwanted; payloads are written verbatim.
type DiskBackend struct {
	basePath string

	// Index for fast lookups
	index map[string]*diskEntry
	open  bool

	mu sync.RWMutex
}

// diskEntry represents an entry in the disk index
type diskEntry struct {
	Key       string
	FileName  string
	Size      int64
	WrittenAt time.Time
}

// NewDiskBackend creates a disk backend rooted at basePath.
func NewDiskBackend(basePath string) *DiskBackend {
	return &DiskBackend{basePath: basePath}
}

// Open creates the cache directory, upgrades it if the stored schema
// version differs and loads the index.
func (d *DiskBackend) Open(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open {
		return nil
	}
	if d.basePath == "" {
		return fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(d.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	if err := d.upgrade(); err != nil {
		return err
	}

	d.index = make(map[string]*diskEntry)
	if err := d.loadIndex(); err != nil {
		// Unreadable index: the clip files cannot be mapped back to keys, so
		// start over with an empty cache.
		log.Warn("cache index unreadable, starting empty", "path", d.basePath, "error", err)
		d.index = make(map[string]*diskEntry)
		if err := d.removeAll(); err != nil {
			return err
		}
		if err := d.saveIndex(); err != nil {
			return err
		}
	}
	d.open = true
	return nil
}

// upgrade wipes clip files written under a different schema version.
func (d *DiskBackend) upgrade() error {
	versionPath := filepath.Join(d.basePath, diskVersionFile)
	raw, err := os.ReadFile(versionPath)
	if err == nil {
		if v, perr := strconv.Atoi(string(bytes.TrimSpace(raw))); perr == nil && v == SchemaVersion {
			return nil
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if err := d.removeAll(); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(d.basePath, diskIndexFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache index: %w", err)
	}
	return writeFileAtomic(versionPath, []byte(strconv.Itoa(SchemaVersion)))
}

// Put writes a clip file and records it in the index.
func (d *DiskBackend) Put(_ context.Context, rec Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return ErrClosed
	}

	fileName := diskFileName(rec.Key)
	if err := writeFileAtomic(filepath.Join(d.basePath, fileName), rec.Payload); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	prev, existed := d.index[rec.Key]
	d.index[rec.Key] = &diskEntry{
		Key:       rec.Key,
		FileName:  fileName,
		Size:      int64(len(rec.Payload)),
		WrittenAt: rec.WrittenAt,
	}
	if err := d.saveIndex(); err != nil {
		if existed {
			d.index[rec.Key] = prev
		} else {
			delete(d.index, rec.Key)
		}
		return err
	}
	return nil
}

// Get reads a clip file. A missing file drops the stale index entry.
func (d *DiskBackend) Get(_ context.Context, key string) (Record, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return Record{}, false, ErrClosed
	}

	entry, ok := d.index[key]
	if !ok {
		return Record{}, false, nil
	}

	data, err := os.ReadFile(filepath.Join(d.basePath, entry.FileName))
	if os.IsNotExist(err) {
		delete(d.index, key)
		return Record{}, false, d.saveIndex()
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read cache file: %w", err)
	}

	return Record{Key: key, Payload: data, WrittenAt: entry.WrittenAt}, true, nil
}

// Has checks the index without touching the clip file.
func (d *DiskBackend) Has(_ context.Context, key string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.open {
		return false, ErrClosed
	}
	_, ok := d.index[key]
	return ok, nil
}

// Clear removes all clip files and empties the index.
func (d *DiskBackend) Clear(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return ErrClosed
	}
	if err := d.removeAll(); err != nil {
		return err
	}
	d.index = make(map[string]*diskEntry)
	return d.saveIndex()
}

// Count returns the number of indexed clips.
func (d *DiskBackend) Count(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.open {
		return 0, ErrClosed
	}
	return len(d.index), nil
}

// List returns index entries, newest write first.
func (d *DiskBackend) List(_ context.Context) ([]RecordInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.open {
		return nil, ErrClosed
	}

	infos := make([]RecordInfo, 0, len(d.index))
	for _, entry := range d.index {
		infos = append(infos, RecordInfo{
			Key:       entry.Key,
			Size:      entry.Size,
			WrittenAt: entry.WrittenAt,
		})
	}
	sortNewestFirst(infos)
	return infos, nil
}

// Close saves the index and marks the backend closed.
func (d *DiskBackend) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return nil
	}
	d.open = false
	return d.saveIndex()
}

// Private helper methods

func diskFileName(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16]) + diskFileSuffix
}

func (d *DiskBackend) removeAll() error {
	matches, err := filepath.Glob(filepath.Join(d.basePath, "*"+diskFileSuffix))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove cache file: %w", err)
		}
	}
	return nil
}

func (d *DiskBackend) loadIndex() error {
	file, err := os.Open(filepath.Join(d.basePath, diskIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No index file yet
		}
		return err
	}
	defer file.Close()

	return gob.NewDecoder(file).Decode(&d.index)
}

func (d *DiskBackend) saveIndex() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(d.index); err != nil {
		return fmt.Errorf("failed to encode cache index: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(d.basePath, diskIndexFile), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write cache index: %w", err)
	}
	return nil
}

// writeFileAtomic writes to a temp file first, then renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}

func sortNewestFirst(infos []RecordInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].WrittenAt.Equal(infos[j].WrittenAt) {
			return infos[i].Key < infos[j].Key
		}
		return infos[i].WrittenAt.After(infos[j].WrittenAt)
	})
}
