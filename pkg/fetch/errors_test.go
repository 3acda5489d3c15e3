package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestHTTPError_Class(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{400, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
		{304, ErrorClassUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			err := &HTTPError{StatusCode: tt.status}
			if got := err.Class(); got != tt.want {
				t.Errorf("Class() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTTPError_Error(t *testing.T) {
	err := &HTTPError{StatusCode: 503}
	want := "upstream server error (status 503): Service Unavailable"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ""},
		{"timeout", fmt.Errorf("%w: slow", ErrTimeout), ErrorClassTimeout},
		{"cancelled", fmt.Errorf("%w: gone", ErrCancelled), ErrorClassCancelled},
		{"raw context cancel", context.Canceled, ErrorClassCancelled},
		{"network", fmt.Errorf("%w: %w", ErrNetwork, io.ErrUnexpectedEOF), ErrorClassNetwork},
		{"wrapped http error", fmt.Errorf("get book: %w", &HTTPError{StatusCode: 502}), ErrorClassServer},
		{"other", errors.New("boom"), ErrorClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout retries", ErrTimeout, true},
		{"5xx retries", &HTTPError{StatusCode: 500}, true},
		{"4xx does not retry", &HTTPError{StatusCode: 404}, false},
		{"429 does not retry", &HTTPError{StatusCode: 429}, false},
		{"cancelled does not retry", ErrCancelled, false},
		{"network does not retry", ErrNetwork, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetriable(tt.err); got != tt.want {
				t.Errorf("IsRetriable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	if code, ok := StatusCode(fmt.Errorf("x: %w", &HTTPError{StatusCode: 404})); !ok || code != 404 {
		t.Errorf("StatusCode() = (%d, %v), want (404, true)", code, ok)
	}
	if _, ok := StatusCode(ErrTimeout); ok {
		t.Error("StatusCode(ErrTimeout) should report false")
	}
}
