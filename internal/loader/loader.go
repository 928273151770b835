package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/animcache/internal/cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/dgnsrekt/animcache/internal/loader"

// Config holds loader settings.
type Config struct {
	// BaseURL resolves relative clip URLs for the network request. The
	// cache key is always the URL as given by the caller.
	BaseURL string

	// RequestsPerMinute limits outbound fetches (0 disables the limit).
	RequestsPerMinute int

	// Timeout bounds a single HTTP request (0 means no timeout).
	Timeout time.Duration

	// MaxBytes caps the response body size (0 means unlimited).
	MaxBytes int64

	// TempDir holds clip handles; defaults to the system temp dir.
	TempDir string
}

// Stats holds loader counters.
type Stats struct {
	Hits            int64
	Misses          int64
	Fetches         int64
	FetchFailures   int64
	PersistFailures int64
	SharedFetches   int64
}

// Loader returns clip bytes from the cache or the network.
type Loader struct {
	store   *cache.Store
	client  *http.Client
	limiter *rate.Limiter
	base    *url.URL
	config  Config
	logger  *log.Logger
	tracer  trace.Tracer

	// Concurrent misses for one URL share a single download.
	group singleflight.Group

	hits            atomic.Int64
	misses          atomic.Int64
	fetches         atomic.Int64
	fetchFailures   atomic.Int64
	persistFailures atomic.Int64
	sharedFetches   atomic.Int64
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg *log.Logger) Option {
	return func(l *Loader) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// WithTracerProvider sets the tracer provider; the global one is used by
// default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Loader) {
		if tp != nil {
			l.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates a loader that reads from and writes to store.
func New(store *cache.Store, config Config, opts ...Option) (*Loader, error) {
	if store == nil {
		return nil, errors.New("loader: store is required")
	}

	l := &Loader{
		store:  store,
		client: &http.Client{Timeout: config.Timeout},
		config: config,
		logger: log.Default(),
		tracer: otel.Tracer(tracerName),
	}

	if config.BaseURL != "" {
		base, err := url.Parse(config.BaseURL)
		if err != nil || !base.IsAbs() {
			return nil, fmt.Errorf("%w: base URL %q", ErrInvalidURL, config.BaseURL)
		}
		l.base = base
	}

	if config.RequestsPerMinute > 0 {
		l.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// GetOrFetch returns the clip stored under rawURL. On a cache miss it
// downloads the clip, persists it and returns it. Persist failures are
// logged and never fail the call.
func (l *Loader) GetOrFetch(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, span := l.tracer.Start(ctx, "loader.GetOrFetch",
		trace.WithAttributes(attribute.String("clip.url", rawURL)))
	defer span.End()

	target, err := l.resolve(rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	payload, err := l.store.Get(ctx, rawURL)
	switch {
	case err == nil:
		l.hits.Add(1)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		l.logger.Debug("clip cache hit", "url", rawURL, "bytes", len(payload))
		return payload, nil
	case errors.Is(err, cache.ErrNotFound):
	default:
		// The cache is an optimization; a broken store means fetching.
		l.logger.Warn("clip cache read failed", "url", rawURL, "error", err)
	}

	l.misses.Add(1)
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// The download outlives any single caller so that one caller giving up
	// does not fail the others waiting on it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(rawURL, func() (any, error) {
		return l.fetchAndPersist(fetchCtx, rawURL, target)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		err := ctx.Err()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	case res = <-ch:
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		return nil, res.Err
	}

	body := res.Val.([]byte)
	if res.Shared {
		l.sharedFetches.Add(1)
		body = bytes.Clone(body)
	}
	span.SetAttributes(attribute.Int("clip.bytes", len(body)))
	return body, nil
}

// Load fetches the clip and hands it to parser through a temporary Handle.
// The handle is released on every path, including parser failure.
func (l *Loader) Load(ctx context.Context, rawURL string, parser Parser) error {
	payload, err := l.GetOrFetch(ctx, rawURL)
	if err != nil {
		return err
	}

	h, err := newHandle(l.config.TempDir, rawURL, payload)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Release(); err != nil {
			l.logger.Warn("failed to release clip handle", "path", h.Path(), "error", err)
		}
	}()

	if err := parser.Parse(ctx, h); err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return nil
}

// Stats returns a snapshot of the loader counters.
func (l *Loader) Stats() Stats {
	return Stats{
		Hits:            l.hits.Load(),
		Misses:          l.misses.Load(),
		Fetches:         l.fetches.Load(),
		FetchFailures:   l.fetchFailures.Load(),
		PersistFailures: l.persistFailures.Load(),
		SharedFetches:   l.sharedFetches.Load(),
	}
}

// resolve validates rawURL and returns the absolute URL to request.
func (l *Loader) resolve(rawURL string) (string, error) {
	if rawURL == "" {
		return "", fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() {
		if l.base == nil {
			return "", fmt.Errorf("%w: relative URL %q without base URL", ErrInvalidURL, rawURL)
		}
		u = l.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
	return u.String(), nil
}

func (l *Loader) fetchAndPersist(ctx context.Context, key, target string) ([]byte, error) {
	body, err := l.fetch(ctx, target)
	if err != nil {
		l.fetchFailures.Add(1)
		return nil, err
	}

	if err := l.store.Put(ctx, key, body); err != nil {
		l.persistFailures.Add(1)
		l.logger.Warn("failed to persist clip", "url", key, "error", err)
	}
	return body, nil
}

func (l *Loader) fetch(ctx context.Context, target string) ([]byte, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{URL: target, Err: fmt.Errorf("rate limit wait cancelled: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}

	l.fetches.Add(1)
	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: target, StatusCode: resp.StatusCode, Err: ErrBadStatus}
	}

	var reader io.Reader = resp.Body
	if l.config.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, l.config.MaxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &FetchError{URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	if l.config.MaxBytes > 0 && int64(len(body)) > l.config.MaxBytes {
		return nil, &FetchError{URL: target, Err: ErrPayloadTooLarge}
	}

	l.logger.Debug("clip fetched", "url", target, "bytes", len(body), "elapsed", time.Since(start))
	return body, nil
}
