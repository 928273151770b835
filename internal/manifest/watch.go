package manifest

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a manifest whenever its file is written.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *log.Logger
}

// NewWatcher starts watching the directory that holds path.
func NewWatcher(path string, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("error adding dir to fsnotify watcher: %w", err)
	}
	logger.Info("watching manifest", "path", abs)

	return &Watcher{path: abs, watcher: w, logger: logger}, nil
}

// Run calls onChange with the reloaded manifest after every write until
// ctx is done. Manifests that fail to parse are logged and skipped.
func (w *Watcher) Run(ctx context.Context, onChange func(*Manifest)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			w.logger.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			m, err := Load(w.path)
			if err != nil {
				w.logger.Warn("manifest reload failed", "path", w.path, "error", err)
				continue
			}
			onChange(m)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Debug("fsnotify error", "path", w.path, "error", err)
		}
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
