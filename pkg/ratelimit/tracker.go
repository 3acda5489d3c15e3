package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/readabook/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for back-off tracking.
var (
	backoffBlocksTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
		Name: "readabook_backoff_blocks_total",
		Help: "Total number of upstream calls refused while a back-off window was open",
	})

	backoffWindowsTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
		Name: "readabook_backoff_windows_total",
		Help: "Total number of back-off windows opened from Retry-After headers",
	})
)

// Tracker watches upstream responses for Retry-After and gates requests.
type Tracker struct {
	store  Store
	logger zerolog.Logger

	// MaxBackoff caps a single window. Zero means DefaultMaxBackoff.
	MaxBackoff time.Duration

	now func() time.Time
}

// NewTracker creates a new tracker. A nil store falls back to a MemoryStore.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:      store,
		logger:     logger,
		MaxBackoff: DefaultMaxBackoff,
		now:        time.Now,
	}
}

// SetClock replaces the time source (for testing).
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// State returns host's current window.
func (t *Tracker) State(ctx context.Context, host string) (BackoffState, error) {
	until, err := t.store.Until(ctx, host)
	if err != nil {
		return BackoffState{}, fmt.Errorf("get backoff state: %w", err)
	}
	return BackoffState{Until: until}, nil
}

// UpdateFromResponse opens or extends host's window when resp is a 429 or 503
// carrying a usable Retry-After header. Other responses are ignored.
func (t *Tracker) UpdateFromResponse(ctx context.Context, host string, resp *http.Response) error {
	if resp == nil {
		return nil
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return nil
	}

	now := t.now()
	wait, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), now)
	if !ok || wait <= 0 {
		return nil
	}

	maxBackoff := t.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}
	if wait > maxBackoff {
		wait = maxBackoff
	}

	if err := t.store.Extend(ctx, host, now.Add(wait)); err != nil {
		return fmt.Errorf("store backoff window: %w", err)
	}

	backoffWindowsTotal.Inc()
	t.logger.Warn().
		Str("host", host).
		Int("status_code", resp.StatusCode).
		Dur("wait", wait).
		Msg("Upstream asked us to back off")

	return nil
}

// ShouldAllowRequest reports whether a call to host may go out now. While
// host's window is open it returns false and the time left. Store failures
// fail open: the call is allowed and the error is returned for the caller to log.
func (t *Tracker) ShouldAllowRequest(ctx context.Context, host string) (bool, time.Duration, error) {
	state, err := t.State(ctx, host)
	if err != nil {
		return true, 0, err
	}

	now := t.now()
	if state.Blocked(now) {
		remaining := state.Remaining(now)
		t.logger.Debug().
			Str("host", host).
			Dur("wait_duration", remaining).
			Msg("Upstream back-off active - refusing request")
		backoffBlocksTotal.Inc()
		return false, remaining, nil
	}

	return true, 0, nil
}
