// Package fetch provides the resilient upstream fetcher: a single HTTP GET
// bounded by a deadline, cancellable through the caller's context, and
// classified into a small failure taxonomy. Retry is a separate policy the
// callers choose (see Policy).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/readabook/pkg/logging"
	"github.com/Sternrassler/readabook/pkg/metrics"
	"github.com/Sternrassler/readabook/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for upstream calls.
var (
	fetchRequestsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "readabook_fetch_requests_total",
		Help: "Total upstream fetches by kind and outcome",
	}, []string{"kind", "outcome"})

	fetchDuration = promauto.With(metrics.Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "readabook_fetch_duration_seconds",
		Help:    "Upstream fetch duration in seconds by kind",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 25},
	}, []string{"kind"})
)

// Kind labels a fetch for metrics and logs.
type Kind string

const (
	KindMetadata Kind = "meta"
	KindListing  Kind = "listing"
	KindText     Kind = "text"
	KindOther    Kind = "other"
)

const (
	// DefaultMaxBodyBytes bounds how much of a response body is read into memory.
	DefaultMaxBodyBytes int64 = 64 << 20

	// drainLimit is how much of an error body is discarded so the connection can be reused.
	drainLimit = 64 << 10
)

// errFetchDeadline is the cause attached to the fetcher's own deadline so it
// can be told apart from a caller cancellation.
var errFetchDeadline = errors.New("fetch deadline")

// Config holds the fetcher configuration.
type Config struct {
	// UserAgent is sent with every request (REQUIRED).
	UserAgent string

	// HTTPClient performs the requests. Per-call deadlines come from Fetch,
	// so the client should not carry its own Timeout.
	HTTPClient *http.Client

	// MaxBodyBytes bounds response bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// Tracker gates calls during upstream back-off windows. Optional.
	Tracker *ratelimit.Tracker

	// Logger defaults to the global logger with component=fetch.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration with an in-memory back-off tracker.
func DefaultConfig(userAgent string) Config {
	logger := logging.NewLogger("fetch")
	return Config{
		UserAgent:    userAgent,
		HTTPClient:   &http.Client{},
		MaxBodyBytes: DefaultMaxBodyBytes,
		Tracker:      ratelimit.NewTracker(ratelimit.NewMemoryStore(), logger),
		Logger:       &logger,
	}
}

// Fetcher performs single upstream GETs.
type Fetcher struct {
	httpClient   *http.Client
	userAgent    string
	maxBodyBytes int64
	tracker      *ratelimit.Tracker
	logger       zerolog.Logger
}

// New creates a new fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	logger := logging.NewLogger("fetch")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Fetcher{
		httpClient:   httpClient,
		userAgent:    cfg.UserAgent,
		maxBodyBytes: maxBody,
		tracker:      cfg.Tracker,
		logger:       logger,
	}, nil
}

// Fetch performs a GET of url and returns the body. The call is abandoned
// when timeout elapses (ErrTimeout) or ctx ends (ErrCancelled).
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	return f.FetchKind(ctx, KindOther, url, timeout)
}

// FetchKind is Fetch with an explicit kind label for metrics and logs.
func (f *Fetcher) FetchKind(ctx context.Context, kind Kind, url string, timeout time.Duration) ([]byte, error) {
	start := time.Now()
	fetchID := uuid.NewString()
	logger := f.logger.With().Str("fetch_id", fetchID).Str("kind", string(kind)).Str("url", url).Logger()

	body, err := f.fetch(ctx, logger, url, timeout)

	fetchDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = string(Classify(err))
	}
	fetchRequestsTotal.WithLabelValues(string(kind), outcome).Inc()

	if err != nil {
		logger.Debug().Err(err).Str("error_class", outcome).Dur("duration", time.Since(start)).Msg("Fetch failed")
		return nil, err
	}

	logger.Debug().Int("bytes", len(body)).Dur("duration", time.Since(start)).Msg("Fetch complete")
	return body, nil
}

func (f *Fetcher) fetch(ctx context.Context, logger zerolog.Logger, url string, timeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.8")
	host := req.URL.Host

	if f.tracker != nil {
		allowed, wait, err := f.tracker.ShouldAllowRequest(ctx, host)
		if err != nil {
			logger.Warn().Err(err).Msg("Back-off state unavailable - allowing request")
		}
		if !allowed {
			return nil, &HTTPError{
				StatusCode: http.StatusTooManyRequests,
				Message:    fmt.Sprintf("upstream back-off active for %s on %s", wait.Round(time.Millisecond), host),
				URL:        url,
			}
		}
	}

	fctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeoutCause(ctx, timeout, errFetchDeadline)
		defer cancel()
		req = req.WithContext(fctx)
	}

	logger.Debug().Dur("timeout", timeout).Msg("Executing upstream request")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, f.classifyTransport(ctx, fctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

		if f.tracker != nil {
			if err := f.tracker.UpdateFromResponse(ctx, host, resp); err != nil {
				logger.Warn().Err(err).Msg("Failed to record upstream back-off")
			}
		}

		httpErr := &HTTPError{StatusCode: resp.StatusCode, Message: resp.Status, URL: url}
		logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("error_class", string(httpErr.Class())).
			Msg("Upstream request error")
		return nil, httpErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, f.classifyTransport(ctx, fctx, err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w: %w (%d bytes)", ErrNetwork, ErrBodyTooLarge, f.maxBodyBytes)
	}

	return body, nil
}

// classifyTransport decides whether a failed round trip or body read was our
// deadline, the caller's cancellation, or the network.
func (f *Fetcher) classifyTransport(parent, fctx context.Context, err error) error {
	if errors.Is(context.Cause(fctx), errFetchDeadline) && parent.Err() == nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if parent.Err() != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, parent.Err())
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %w", ErrNetwork, err)
}
