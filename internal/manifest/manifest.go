// Package manifest reads clip manifests and warms the cache from them.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// ErrEmptyManifest is returned for a manifest without clips.
var ErrEmptyManifest = errors.New("manifest lists no clips")

// Manifest lists the clips an avatar scene needs.
type Manifest struct {
	// BaseURL resolves relative clip entries.
	BaseURL string   `yaml:"base_url"`
	Clips   []string `yaml:"clips"`
}

// Parse decodes a YAML manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unable to parse manifest: %w", err)
	}
	if len(m.Clips) == 0 {
		return nil, ErrEmptyManifest
	}
	for i, c := range m.Clips {
		if strings.TrimSpace(c) == "" {
			return nil, fmt.Errorf("manifest entry %d is empty", i)
		}
	}
	return &m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read manifest: %w", err)
	}
	return Parse(data)
}

// URLs returns the clip URLs with BaseURL applied, without duplicates, in
// manifest order.
func (m *Manifest) URLs() ([]string, error) {
	var base *url.URL
	if m.BaseURL != "" {
		u, err := url.Parse(m.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base_url: %w", err)
		}
		base = u
	}

	seen := make(map[string]bool, len(m.Clips))
	urls := make([]string, 0, len(m.Clips))
	for _, c := range m.Clips {
		c = strings.TrimSpace(c)
		if base != nil {
			ref, err := url.Parse(c)
			if err != nil {
				return nil, fmt.Errorf("invalid clip %q: %w", c, err)
			}
			c = base.ResolveReference(ref).String()
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		urls = append(urls, c)
	}
	return urls, nil
}

// Fetcher is satisfied by *loader.Loader.
type Fetcher interface {
	GetOrFetch(ctx context.Context, url string) ([]byte, error)
}

// Result is the outcome of prefetching one clip.
type Result struct {
	URL   string
	Bytes int
	Err   error
}

// Prefetch runs GetOrFetch for every URL with at most concurrency calls in
// flight. A failing clip does not stop the others.
func Prefetch(ctx context.Context, f Fetcher, urls []string, concurrency int) []Result {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]Result, len(urls))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, u := range urls {
		g.Go(func() error {
			data, err := f.GetOrFetch(ctx, u)
			results[i] = Result{URL: u, Bytes: len(data), Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
