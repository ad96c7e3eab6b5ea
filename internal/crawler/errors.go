package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyListing is matched by EmptyListingError.
	ErrEmptyListing = errors.New("listing page yielded no programs")
	// ErrNoContent is matched by NoContentError.
	ErrNoContent = errors.New("detail page yielded no content")
)

// ConfigError reports a missing or invalid configuration value.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// FetchError reports a completed HTTP exchange with a non-200 status.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// TimeoutError reports a fetch that exceeded its deadline.
type TimeoutError struct {
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fetch %s: timed out: %v", e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError reports a connection, DNS, or TLS failure.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: transport failure: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// EmptyListingError reports that every listing matcher came up empty.
type EmptyListingError struct {
	Matchers []string
}

func (e *EmptyListingError) Error() string {
	if len(e.Matchers) == 0 {
		return ErrEmptyListing.Error()
	}
	return fmt.Sprintf("%s (tried %d matchers)", ErrEmptyListing, len(e.Matchers))
}

func (e *EmptyListingError) Unwrap() error { return ErrEmptyListing }

// NoContentError reports a detail page whose record came back empty.
type NoContentError struct {
	URL  string
	Name string
}

func (e *NoContentError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrNoContent, e.Name, e.URL)
}

func (e *NoContentError) Unwrap() error { return ErrNoContent }

// IndexPublishError reports a wholesale failure of an index publish.
type IndexPublishError struct {
	Backend string
	Op      string
	Err     error
}

func (e *IndexPublishError) Error() string {
	return fmt.Sprintf("index %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *IndexPublishError) Unwrap() error { return e.Err }

// FailureKind returns a short metric label for err.
func FailureKind(err error) string {
	var (
		fetchErr     *FetchError
		timeoutErr   *TimeoutError
		transportErr *TransportError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &fetchErr):
		return "http_status"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.Is(err, ErrNoContent):
		return "no_content"
	case errors.Is(err, ErrEmptyListing):
		return "empty_listing"
	default:
		return "error"
	}
}
