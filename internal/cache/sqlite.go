package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores clips in a single SQLite database file.
type SQLiteBackend struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteBackend returns a backend for the database at path. Nothing is
// opened until Open.
func NewSQLiteBackend(path string) *SQLiteBackend {
	return &SQLiteBackend{path: path}
}

// Open opens the database and applies pending migrations.
func (b *SQLiteBackend) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		return nil
	}
	if strings.TrimSpace(b.path) == "" {
		return fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(b.path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer; a single connection keeps writes ordered.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("run migrations: %w", err)
	}

	b.db = db
	return nil
}

func (b *SQLiteBackend) conn() (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, ErrClosed
	}
	return b.db, nil
}

// Put upserts a record.
func (b *SQLiteBackend) Put(ctx context.Context, rec Record) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	payload := rec.Payload
	if payload == nil {
		payload = []byte{}
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO clips (key, payload, written_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		    payload = excluded.payload,
		    written_at = excluded.written_at`,
		rec.Key, payload, timeToUnixMillis(rec.WrittenAt),
	)
	if err != nil {
		return fmt.Errorf("put clip: %w", err)
	}
	return nil
}

// Get loads a record by key.
func (b *SQLiteBackend) Get(ctx context.Context, key string) (Record, bool, error) {
	db, err := b.conn()
	if err != nil {
		return Record{}, false, err
	}

	rec := Record{Key: key}
	var writtenAt int64
	err = db.QueryRowContext(ctx,
		`SELECT payload, written_at FROM clips WHERE key = ?`, key,
	).Scan(&rec.Payload, &writtenAt)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get clip: %w", err)
	}
	rec.WrittenAt = unixMillisToTime(writtenAt)
	return rec, true, nil
}

// Has reports whether key exists.
func (b *SQLiteBackend) Has(ctx context.Context, key string) (bool, error) {
	db, err := b.conn()
	if err != nil {
		return false, err
	}
	var found int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM clips WHERE key = ?`, key).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has clip: %w", err)
	}
	return true, nil
}

// Clear deletes every record.
func (b *SQLiteBackend) Clear(ctx context.Context) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM clips`); err != nil {
		return fmt.Errorf("clear clips: %w", err)
	}
	return nil
}

// Count returns the number of records.
func (b *SQLiteBackend) Count(ctx context.Context) (int, error) {
	db, err := b.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clips`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count clips: %w", err)
	}
	return n, nil
}

// List returns record metadata ordered by write time, newest first.
func (b *SQLiteBackend) List(ctx context.Context) ([]RecordInfo, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT key, length(payload), written_at FROM clips ORDER BY written_at DESC, key`)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	defer rows.Close()

	var infos []RecordInfo
	for rows.Next() {
		var info RecordInfo
		var size sql.NullInt64
		var writtenAt int64
		if err := rows.Scan(&info.Key, &size, &writtenAt); err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		info.Size = size.Int64
		info.WrittenAt = unixMillisToTime(writtenAt)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clips: %w", err)
	}
	return infos, nil
}

// SchemaVersion reads the user_version stamped on the open database.
func (b *SQLiteBackend) SchemaVersion(ctx context.Context) (int, error) {
	db, err := b.conn()
	if err != nil {
		return 0, err
	}
	var v int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Close releases the database connection.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func timeToUnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func unixMillisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
