package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an upstream failure.
type Kind string

const (
	// KindTimeout is a call that exceeded its deadline.
	KindTimeout Kind = "timeout"

	// KindConnectionFailed is any other transport failure (DNS, refused, reset).
	KindConnectionFailed Kind = "connection_failed"

	// KindHTTPStatus is a response with a non-2xx status code.
	KindHTTPStatus Kind = "http_status"

	// KindMalformedJSON is a 2xx response whose body is not valid JSON.
	KindMalformedJSON Kind = "malformed_json"

	// KindBodyTooLarge is a 2xx response larger than Config.MaxBodyBytes.
	KindBodyTooLarge Kind = "body_too_large"
)

// Error is a failed upstream call. URL is always redacted.
type Error struct {
	Upstream   string
	Kind       Kind
	StatusCode int
	Body       string
	URL        string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("%s upstream: HTTP %d %s (GET %s)",
			e.Upstream, e.StatusCode, http.StatusText(e.StatusCode), e.URL)
	case KindTimeout:
		return fmt.Sprintf("%s upstream: timed out (GET %s)", e.Upstream, e.URL)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s upstream %s (GET %s): %v", e.Upstream, e.Kind, e.URL, e.Err)
		}
		return fmt.Sprintf("%s upstream %s (GET %s)", e.Upstream, e.Kind, e.URL)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of an upstream error, or "" if err is not one.
func KindOf(err error) Kind {
	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr.Kind
	}
	return ""
}

// IsRateLimited reports whether err is an upstream HTTP 429.
func IsRateLimited(err error) bool {
	var upErr *Error
	return errors.As(err, &upErr) &&
		upErr.Kind == KindHTTPStatus &&
		upErr.StatusCode == http.StatusTooManyRequests
}
