// Package metrics exposes the Prometheus registry used by readabook and the
// HTTP handler that serves it. Collectors are defined next to the code that
// updates them (fetch, cache, ratelimit, segment) and registered through
// promauto on the default registerer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registerer all readabook collectors use.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source the /metrics handler reads from.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving the registry in the Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Fetch Metrics (pkg/fetch):
//   - readabook_fetch_requests_total{kind, outcome} (Counter): upstream calls by kind (meta, listing, text) and outcome
//   - readabook_fetch_duration_seconds{kind} (Histogram): upstream call latency
//   - readabook_fetch_retries_total{error_class} (Counter): retry attempts
//   - readabook_fetch_retry_exhausted_total{error_class} (Counter): calls that used up every attempt
//
// Back-off Metrics (pkg/ratelimit):
//   - readabook_backoff_blocks_total (Counter): calls refused while an upstream back-off window was open
//   - readabook_backoff_windows_total (Counter): back-off windows opened from Retry-After
//
// Cache Metrics (pkg/cache):
//   - readabook_cache_hits_total{cache} (Counter)
//   - readabook_cache_misses_total{cache} (Counter)
//   - readabook_cache_coalesced_total{cache} (Counter): callers that joined an in-flight load
//   - readabook_cache_evictions_total{cache, reason} (Counter): reason is capacity, expired or sweep
//   - readabook_cache_entries{cache} (Gauge)
//
// Segmenter Metrics (pkg/segment):
//   - readabook_segment_strategy_total{strategy} (Counter)
//   - readabook_segment_chapters (Histogram)
//
// Example Prometheus Queries:
//
//   # Listing cache hit rate
//   sum(rate(readabook_cache_hits_total{cache="listings"}[5m])) /
//   (sum(rate(readabook_cache_hits_total{cache="listings"}[5m])) + sum(rate(readabook_cache_misses_total{cache="listings"}[5m])))
//
//   # Text download P95
//   histogram_quantile(0.95, rate(readabook_fetch_duration_seconds_bucket{kind="text"}[5m]))
