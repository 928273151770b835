// Package inspect exposes read-only diagnostics over the clip cache, plus
// the operator's destructive clear action.
package inspect

import (
	"context"
	"time"

	"github.com/dgnsrekt/animcache/internal/cache"
)

// Inspector reports on a cache store.
type Inspector struct {
	store *cache.Store
}

// New creates an inspector for store.
func New(store *cache.Store) *Inspector {
	return &Inspector{store: store}
}

// Summary is an aggregate view of the store.
type Summary struct {
	Count      int
	TotalBytes int64
	Newest     time.Time
	Oldest     time.Time

	// KnownKey is the key probed for presence; empty when none was asked for.
	KnownKey    string
	HasKnownKey bool
}

// Count returns the number of cached clips.
func (i *Inspector) Count(ctx context.Context) (int, error) {
	return i.store.Count(ctx)
}

// Has reports whether key is cached.
func (i *Inspector) Has(ctx context.Context, key string) (bool, error) {
	return i.store.Has(ctx, key)
}

// Clear empties the store.
func (i *Inspector) Clear(ctx context.Context) error {
	return i.store.Clear(ctx)
}

// List returns record metadata, newest write first.
func (i *Inspector) List(ctx context.Context) ([]cache.RecordInfo, error) {
	return i.store.List(ctx)
}

// Summary aggregates the store contents. knownKey may be empty.
func (i *Inspector) Summary(ctx context.Context, knownKey string) (Summary, error) {
	infos, err := i.store.List(ctx)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{Count: len(infos), KnownKey: knownKey}
	for _, info := range infos {
		s.TotalBytes += info.Size
		if s.Newest.IsZero() || info.WrittenAt.After(s.Newest) {
			s.Newest = info.WrittenAt
		}
		if s.Oldest.IsZero() || info.WrittenAt.Before(s.Oldest) {
			s.Oldest = info.WrittenAt
		}
	}

	if knownKey != "" {
		s.HasKnownKey, err = i.store.Has(ctx, knownKey)
		if err != nil {
			return Summary{}, err
		}
	}
	return s, nil
}
