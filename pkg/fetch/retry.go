package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/readabook/pkg/metrics"
	"github.com/avast/retry-go/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	fetchRetriesTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "readabook_fetch_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	fetchRetryExhaustedTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "readabook_fetch_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// DefaultRetryDelay is the fixed pause before the single metadata retry.
const DefaultRetryDelay = 1200 * time.Millisecond

// Policy describes how a call site retries.
type Policy struct {
	// Attempts is the total number of attempts including the first. Values below 1 mean 1.
	Attempts uint

	// Delay is the fixed pause between attempts.
	Delay time.Duration

	// RetryIf decides whether an error deserves another attempt. Nil means IsRetriable.
	RetryIf func(error) bool
}

// MetadataPolicy retries once after delay on a timeout or 5xx.
func MetadataPolicy(delay time.Duration) Policy {
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return Policy{
		Attempts: 2,
		Delay:    delay,
		RetryIf:  IsRetriable,
	}
}

// NoRetryPolicy makes exactly one attempt. Used for full-text downloads where
// re-fetching a large body costs more than it saves.
func NoRetryPolicy() Policy {
	return Policy{Attempts: 1}
}

// Do runs op under policy p. The pause between attempts is abandoned as soon
// as ctx ends, yielding ErrCancelled.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = IsRetriable
	}

	var lastClass ErrorClass
	value, err := retry.DoWithData(
		func() (T, error) {
			v, err := op(ctx)
			if err != nil {
				lastClass = Classify(err)
			}
			return v, err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryIf),
		retry.OnRetry(func(n uint, err error) {
			// retry-go also reports the final failed attempt here.
			if n+1 >= attempts {
				return
			}
			class := Classify(err)
			fetchRetriesTotal.WithLabelValues(string(class)).Inc()
			log.Warn().
				Err(err).
				Str("error_class", string(class)).
				Uint("attempt", n+1).
				Dur("backoff", p.Delay).
				Msg("Retrying upstream request after backoff")
		}),
	)
	if err == nil {
		return value, nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if !errors.Is(err, ErrCancelled) && !errors.Is(err, ErrTimeout) {
			err = fmt.Errorf("%w: %v", ErrCancelled, err)
		}
	}

	if attempts > 1 && retryIf(err) {
		fetchRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
		log.Error().
			Err(err).
			Str("error_class", string(lastClass)).
			Uint("max_attempts", attempts).
			Msg("Retry attempts exhausted")
	}

	var zero T
	return zero, err
}
