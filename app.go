package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/animcache/internal/cache"
	"github.com/dgnsrekt/animcache/internal/loader"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// openStore builds the clip store from configuration. The backend is
// opened lazily by the first operation.
func openStore() (*cache.Store, error) {
	path := viper.GetString("store.path")
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("unable to expand store path: %w", err)
		}
		path = expanded
	}

	return cache.Open(&cache.Config{
		Backend: cache.BackendKind(strings.ToLower(viper.GetString("store.backend"))),
		Path:    path,
	}, cache.WithLogger(log.Default()))
}

// newLoader builds a loader over store from configuration.
func newLoader(store *cache.Store) (*loader.Loader, error) {
	return loader.New(store, loader.Config{
		BaseURL:           viper.GetString("loader.base_url"),
		RequestsPerMinute: viper.GetInt("loader.requests_per_minute"),
		Timeout:           viper.GetDuration("loader.timeout"),
		MaxBytes:          int64(viper.GetInt("loader.max_size_mb")) * 1024 * 1024,
	}, loader.WithLogger(log.Default()))
}
