package cache

import (
	"context"
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrNotFound is returned when no record exists for a key. It is a
	// sentinel, not a failure of the store.
	ErrNotFound = errors.New("cache: record not found")

	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = errors.New("cache: invalid key")

	// ErrClosed is returned by a backend used after Close.
	ErrClosed = errors.New("cache: backend closed")
)

// SchemaVersion is the version of the on-disk layout. Bumping it makes
// backends run their upgrade step on the next open.
const SchemaVersion = 1

// Record is a single cached clip.
type Record struct {
	Key       string
	Payload   []byte
	WrittenAt time.Time
}

// RecordInfo describes a record without its payload.
type RecordInfo struct {
	Key       string
	Size      int64
	WrittenAt time.Time
}

// Backend is the storage engine behind a Store. Implementations serialize
// their own writes; the Store only guarantees that Open has succeeded
// before any other method is called.
type Backend interface {
	// Open prepares the schema. It may be called again after a failure or
	// after Close.
	Open(ctx context.Context) error

	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, key string) (Record, bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)

	// List returns every record's metadata, newest write first.
	List(ctx context.Context) ([]RecordInfo, error)

	Close() error
}

// BackendKind names a Backend implementation in configuration.
type BackendKind string

const (
	BackendSQLite BackendKind = "sqlite"
	BackendDisk   BackendKind = "disk"
	BackendMemory BackendKind = "memory"
)

// String returns the string representation of the backend kind
func (k BackendKind) String() string {
	return string(k)
}

// Config holds configuration for a Store.
type Config struct {
	Backend BackendKind
	// Path is the database file for BackendSQLite or the directory for
	// BackendDisk. Ignored for BackendMemory.
	Path string
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendSQLite,
	}
}
