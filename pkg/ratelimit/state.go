// Package ratelimit gates outbound calls to rate-limited upstreams. When an
// upstream answers 429 or 503 with a Retry-After header, the tracker opens a
// back-off window for that upstream's host; calls to the host made while the
// window is open are refused without touching the network. Other hosts are
// unaffected.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// RedisKeyBackoffUntil prefixes the per-host keys holding the end of the
	// current back-off window as unix milliseconds ("readabook:backoff:until:<host>").
	RedisKeyBackoffUntil = "readabook:backoff:until"

	// DefaultMaxBackoff caps how long a single Retry-After can close the gate.
	DefaultMaxBackoff = 60 * time.Second
)

// BackoffState is a snapshot of the gate.
type BackoffState struct {
	// Until is when the current window closes. Zero means no window was ever opened.
	Until time.Time `json:"until"`
}

// Blocked reports whether the window is still open at now.
func (s BackoffState) Blocked(now time.Time) bool {
	return now.Before(s.Until)
}

// Remaining returns the time left in the window. Returns 0 once it has passed.
func (s BackoffState) Remaining(now time.Time) time.Duration {
	d := s.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ParseRetryAfter reads a Retry-After value in either delta-seconds or
// HTTP-date form. The second result is false when the value is absent or
// malformed.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := at.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}
