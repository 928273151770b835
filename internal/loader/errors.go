package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedScheme is returned for URLs that are not http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrInvalidURL is returned for URLs that cannot be parsed, or relative
	// URLs when no base URL is configured.
	ErrInvalidURL = errors.New("invalid clip URL")

	// ErrPayloadTooLarge is returned when a response body exceeds MaxBytes.
	ErrPayloadTooLarge = errors.New("clip payload too large")

	// ErrBadStatus is wrapped by FetchError for non-2xx responses.
	ErrBadStatus = errors.New("unexpected HTTP status")
)

// FetchError reports a failed download. It is fatal for the call that
// triggered it; there is no cached fallback.
type FetchError struct {
	URL        string
	StatusCode int // zero for transport failures
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
