package cache

import (
	"github.com/Sternrassler/readabook/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by cache name
	CacheHits = promauto.With(metrics.Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "readabook_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	// CacheMisses tracks cache misses by cache name
	CacheMisses = promauto.With(metrics.Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "readabook_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// CacheCoalesced tracks callers that shared an in-flight load
	CacheCoalesced = promauto.With(metrics.Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "readabook_cache_coalesced_total",
			Help: "Total number of callers served by a shared in-flight load",
		},
		[]string{"cache"},
	)

	// CacheEvictions tracks removed entries by reason
	CacheEvictions = promauto.With(metrics.Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "readabook_cache_evictions_total",
			Help: "Total number of evicted cache entries",
		},
		[]string{"cache", "reason"}, // "capacity", "expired", "sweep"
	)

	// CacheEntries tracks resident entries
	CacheEntries = promauto.With(metrics.Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "readabook_cache_entries",
			Help: "Current number of resident cache entries",
		},
		[]string{"cache"},
	)
)
