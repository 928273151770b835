package cache

import (
	"context"
	"sync"
)

// MemoryBackend keeps records in a map for the lifetime of the process.
type MemoryBackend struct {
	items map[string]Record
	open  bool

	mu sync.RWMutex
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]Record)}
}

// Open marks the backend usable. Records survive Close and re-Open.
func (m *MemoryBackend) Open(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.open = true
	return nil
}

// Put stores a copy of rec.
func (m *MemoryBackend) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return ErrClosed
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	m.items[rec.Key] = rec
	return nil
}

// Get returns a copy of the record for key.
func (m *MemoryBackend) Get(_ context.Context, key string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.open {
		return Record{}, false, ErrClosed
	}
	rec, ok := m.items[key]
	if !ok {
		return Record{}, false, nil
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	return rec, true, nil
}

// Has reports whether key exists.
func (m *MemoryBackend) Has(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.open {
		return false, ErrClosed
	}
	_, ok := m.items[key]
	return ok, nil
}

// Clear removes all entries.
func (m *MemoryBackend) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return ErrClosed
	}
	m.items = make(map[string]Record)
	return nil
}

// Count returns the number of entries.
func (m *MemoryBackend) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.open {
		return 0, ErrClosed
	}
	return len(m.items), nil
}

// List returns entry metadata, newest write first.
func (m *MemoryBackend) List(_ context.Context) ([]RecordInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.open {
		return nil, ErrClosed
	}
	infos := make([]RecordInfo, 0, len(m.items))
	for _, rec := range m.items {
		infos = append(infos, RecordInfo{
			Key:       rec.Key,
			Size:      int64(len(rec.Payload)),
			WrittenAt: rec.WrittenAt,
		})
	}
	sortNewestFirst(infos)
	return infos, nil
}

// Close marks the backend closed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.open = false
	return nil
}
