package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Store is the persistent clip cache. It wraps a Backend and makes sure
// the backend schema is open before any read or write.
type Store struct {
	backend Backend
	logger  *log.Logger
	now     func() time.Time

	// Lifecycle. initialized is only set after a successful Open so a failed
	// open is retried by the next operation.
	mu          sync.Mutex
	initialized bool

	// ops is held for reading by every operation and for writing by Close,
	// so Close waits for in-flight calls instead of closing under them.
	ops sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for WrittenAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a store on top of backend. The backend is not opened
// until Init or the first operation.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  log.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open builds the backend described by config and wraps it in a Store.
func Open(config *Config, opts ...Option) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	path := config.Path
	if path == "" && config.Backend != BackendMemory {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		path = dir
		if config.Backend == BackendSQLite || config.Backend == "" {
			path = filepath.Join(dir, "clips.db")
		}
	}

	var backend Backend
	switch BackendKind(strings.ToLower(string(config.Backend))) {
	case BackendSQLite, "":
		backend = NewSQLiteBackend(path)
	case BackendDisk:
		backend = NewDiskBackend(path)
	case BackendMemory:
		backend = NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown cache backend %q", config.Backend)
	}

	return NewStore(backend, opts...), nil
}

// defaultDir returns the per-user cache directory for clip data.
func defaultDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		homeDir, herr := os.UserHomeDir()
		if herr != nil {
			return "", fmt.Errorf("failed to get cache directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".cache")
	}
	return filepath.Join(dir, "animcache"), nil
}

// Init opens the backend schema. It is safe to call more than once; after
// the first success later calls return immediately. A failure is returned
// to the caller and the next call tries again.
func (s *Store) Init(ctx context.Context) error {
	s.ops.RLock()
	defer s.ops.RUnlock()
	return s.ensureOpen(ctx)
}

func (s *Store) ensureOpen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	if err := s.backend.Open(ctx); err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	s.initialized = true
	s.logger.Debug("cache store initialized", "schema", SchemaVersion)
	return nil
}

// Put writes or overwrites the record for key with a copy of payload.
func (s *Store) Put(ctx context.Context, key string, payload []byte) error {
	s.ops.RLock()
	defer s.ops.RUnlock()

	if key == "" {
		return ErrInvalidKey
	}
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}

	rec := Record{
		Key:       key,
		Payload:   append([]byte(nil), payload...),
		WrittenAt: s.now(),
	}
	if err := s.backend.Put(ctx, rec); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Get returns the payload stored for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.ops.RLock()
	defer s.ops.RUnlock()

	rec, err := s.record(ctx, key)
	if err != nil {
		return nil, err
	}
	return rec.Payload, nil
}

// Record returns the full record stored for key, or ErrNotFound.
func (s *Store) Record(ctx context.Context, key string) (Record, error) {
	s.ops.RLock()
	defer s.ops.RUnlock()
	return s.record(ctx, key)
}

func (s *Store) record(ctx context.Context, key string) (Record, error) {
	if key == "" {
		return Record{}, ErrInvalidKey
	}
	if err := s.ensureOpen(ctx); err != nil {
		return Record{}, err
	}

	rec, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return Record{}, fmt.Errorf("get %q: %w", key, err)
	}
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Has reports whether a record exists for key without reading its payload.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	s.ops.RLock()
	defer s.ops.RUnlock()

	if key == "" {
		return false, ErrInvalidKey
	}
	if err := s.ensureOpen(ctx); err != nil {
		return false, err
	}

	ok, err := s.backend.Has(ctx, key)
	if err != nil {
		return false, fmt.Errorf("has %q: %w", key, err)
	}
	return ok, nil
}

// Clear removes every record.
func (s *Store) Clear(ctx context.Context) error {
	s.ops.RLock()
	defer s.ops.RUnlock()

	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	s.logger.Debug("cache store cleared")
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.ops.RLock()
	defer s.ops.RUnlock()

	if err := s.ensureOpen(ctx); err != nil {
		return 0, err
	}
	n, err := s.backend.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// List returns metadata for every record, newest write first.
func (s *Store) List(ctx context.Context) ([]RecordInfo, error) {
	s.ops.RLock()
	defer s.ops.RUnlock()

	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}
	infos, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return infos, nil
}

// Close releases the backend once in-flight operations finish. A later
// operation reopens it.
func (s *Store) Close() error {
	s.ops.Lock()
	defer s.ops.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}
	s.initialized = false
	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("close cache store: %w", err)
	}
	return nil
}
