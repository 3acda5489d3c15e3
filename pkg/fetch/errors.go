package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Failure kinds surfaced by the fetcher. Every error returned by Fetch
// matches exactly one of these with errors.Is, or is an *HTTPError.
var (
	// ErrTimeout is returned when the fetcher's own deadline fires.
	ErrTimeout = errors.New("upstream deadline exceeded")

	// ErrCancelled is returned when the caller's context ends first.
	ErrCancelled = errors.New("request cancelled")

	// ErrNetwork wraps transport failures (DNS, connection reset, truncated body).
	ErrNetwork = errors.New("upstream network error")

	// ErrBodyTooLarge is wrapped by ErrNetwork when a body exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body exceeds limit")
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and local back-off refusals.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents a fired fetch deadline.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassCancelled represents caller cancellation.
	ErrorClassCancelled ErrorClass = "cancelled"

	// ErrorClassUnknown covers anything else.
	ErrorClassUnknown ErrorClass = "unknown"
)

// HTTPError is returned for non-2xx upstream responses.
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s", e.Class(), e.StatusCode, msg)
}

// Class classifies the status code.
func (e *HTTPError) Class() ErrorClass {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return ErrorClassClient
	case e.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassUnknown
	}
}

// Classify maps any error returned from this package to its ErrorClass.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var httpErr *HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Class()
	case errors.Is(err, ErrTimeout):
		return ErrorClassTimeout
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return ErrorClassCancelled
	case errors.Is(err, ErrNetwork):
		return ErrorClassNetwork
	default:
		return ErrorClassUnknown
	}
}

// IsRetriable reports whether a metadata call that failed with err is worth
// one more attempt: a fired deadline or a 5xx response. Client errors,
// rate-limit refusals, network errors and cancellation are final.
func IsRetriable(err error) bool {
	switch Classify(err) {
	case ErrorClassTimeout, ErrorClassServer:
		return true
	default:
		return false
	}
}

// StatusCode extracts the upstream status from an *HTTPError.
func StatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}
