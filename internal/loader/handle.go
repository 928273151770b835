package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Handle is a short-lived reference to clip bytes, backed by a temporary
// file so that external parsers can open it by path or read it directly.
// It must be released once the parser is done.
type Handle struct {
	URL  string
	file *os.File
	size int64

	once       sync.Once
	releaseErr error
}

// Parser consumes a clip. Implementations must not retain the handle after
// Parse returns.
type Parser interface {
	Parse(ctx context.Context, h *Handle) error
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, h *Handle) error

// Parse calls f(ctx, h).
func (f ParserFunc) Parse(ctx context.Context, h *Handle) error {
	return f(ctx, h)
}

func newHandle(dir, url string, payload []byte) (*Handle, error) {
	file, err := os.CreateTemp(dir, "clip-*.bin")
	if err != nil {
		return nil, fmt.Errorf("create clip handle: %w", err)
	}

	h := &Handle{URL: url, file: file, size: int64(len(payload))}
	if _, err := file.Write(payload); err != nil {
		_ = h.Release()
		return nil, fmt.Errorf("write clip handle: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		_ = h.Release()
		return nil, fmt.Errorf("rewind clip handle: %w", err)
	}
	return h, nil
}

// Path returns the location of the backing file.
func (h *Handle) Path() string {
	return h.file.Name()
}

// Size returns the number of payload bytes.
func (h *Handle) Size() int64 {
	return h.size
}

// Reader returns the backing file positioned at the start of the payload.
func (h *Handle) Reader() io.ReadSeeker {
	return h.file
}

// Release closes and removes the backing file. Calling it more than once
// is harmless.
func (h *Handle) Release() error {
	h.once.Do(func() {
		closeErr := h.file.Close()
		removeErr := os.Remove(h.file.Name())
		if removeErr != nil && !os.IsNotExist(removeErr) {
			h.releaseErr = removeErr
		} else if closeErr != nil {
			h.releaseErr = closeErr
		}
	})
	return h.releaseErr
}
