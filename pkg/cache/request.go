package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/readabook/pkg/fetch"
	"github.com/Sternrassler/readabook/pkg/logging"
)

// DefaultRequestTTL is the validity period of request cache entries.
const DefaultRequestTTL = 10 * time.Minute

// Loader produces the value for a key on a cache miss.
type Loader[V any] func(ctx context.Context) (V, error)

// RequestCacheConfig holds request cache configuration.
type RequestCacheConfig struct {
	// TTL is the entry validity period. Zero means DefaultRequestTTL.
	TTL time.Duration

	// Now is the clock used for freshness checks. Defaults to time.Now.
	Now func() time.Time

	// Logger defaults to the global logger with component=cache.
	Logger *zerolog.Logger
}

// DefaultRequestCacheConfig returns the default configuration.
func DefaultRequestCacheConfig() RequestCacheConfig {
	return RequestCacheConfig{TTL: DefaultRequestTTL}
}

// RequestCache is a TTL cache of upstream responses with request coalescing.
type RequestCache[V any] struct {
	name   string
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string]Entry[V]
	group   singleflight.Group
}

// NewRequestCache creates a request cache. name labels metrics and logs.
func NewRequestCache[V any](name string, cfg RequestCacheConfig) *RequestCache[V] {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := logging.NewLogger("cache").With().Str("cache", name).Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("cache", name).Logger()
	}

	return &RequestCache[V]{
		name:    name,
		ttl:     ttl,
		now:     now,
		logger:  logger,
		entries: make(map[string]Entry[V]),
	}
}

// TTL returns the entry validity period.
func (c *RequestCache[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached value for key if present and fresh.
// It never triggers a load.
func (c *RequestCache[V]) Get(key RequestKey) (V, bool) {
	v, ok := c.lookup(key.String())
	if ok {
		CacheHits.WithLabelValues(c.name).Inc()
	}
	return v, ok
}

// Put stores value under key, replacing any existing entry.
func (c *RequestCache[V]) Put(key RequestKey, value V) {
	c.store(key.String(), value)
}

// Delete removes the entry for key.
func (c *RequestCache[V]) Delete(key RequestKey) {
	c.mu.Lock()
	delete(c.entries, key.String())
	n := len(c.entries)
	c.mu.Unlock()
	CacheEntries.WithLabelValues(c.name).Set(float64(n))
}

// Clear removes all entries.
func (c *RequestCache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry[V])
	c.mu.Unlock()
	CacheEntries.WithLabelValues(c.name).Set(0)
}

// Len returns the number of resident entries, expired ones included.
func (c *RequestCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Resolve returns the value for key, loading it on a miss.
//
// At most one load per key is in flight: callers arriving while a load runs
// wait for it and receive the same value or error. The load runs detached from
// any single caller, so a caller whose ctx ends gets fetch.ErrCancelled while
// the load continues for the remaining callers and still populates the cache.
// Failed loads are not stored.
func (c *RequestCache[V]) Resolve(ctx context.Context, key RequestKey, load Loader[V]) (V, error) {
	var zero V
	k := key.String()

	if v, ok := c.lookup(k); ok {
		CacheHits.WithLabelValues(c.name).Inc()
		return v, nil
	}
	CacheMisses.WithLabelValues(c.name).Inc()

	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%w: %w", fetch.ErrCancelled, err)
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k, func() (any, error) {
		// A previous flight may have stored the value after our lookup.
		if v, ok := c.lookup(k); ok {
			return v, nil
		}
		v, err := load(loadCtx)
		if err != nil {
			c.logger.Debug().Err(err).Str("key", k).Msg("Load failed, not caching")
			return nil, err
		}
		c.store(k, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			CacheCoalesced.WithLabelValues(c.name).Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", fetch.ErrCancelled, ctx.Err())
	}
}

// Prefetch warms key in the background unless a fresh entry exists.
// Errors are logged and discarded.
func (c *RequestCache[V]) Prefetch(key RequestKey, load Loader[V]) {
	if _, ok := c.lookup(key.String()); ok {
		return
	}
	go func() {
		if _, err := c.Resolve(context.Background(), key, load); err != nil {
			c.logger.Debug().Err(err).Str("key", key.String()).Msg("Prefetch failed")
		}
	}()
}

// Sweep removes all expired entries and returns how many were removed.
func (c *RequestCache[V]) Sweep() int {
	now := c.now()

	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if !e.Fresh(c.ttl, now) {
			delete(c.entries, k)
			removed++
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		CacheEvictions.WithLabelValues(c.name, "sweep").Add(float64(removed))
		c.logger.Debug().Int("removed", removed).Int("remaining", n).Msg("Swept expired entries")
	}
	CacheEntries.WithLabelValues(c.name).Set(float64(n))
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done. It blocks,
// so callers usually run it in its own goroutine.
func (c *RequestCache[V]) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *RequestCache[V]) lookup(k string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if !ok || !e.Fresh(c.ttl, c.now()) {
		var zero V
		return zero, false
	}
	return e.Value, true
}

func (c *RequestCache[V]) store(k string, v V) {
	c.mu.Lock()
	c.entries[k] = Entry[V]{Value: v, StoredAt: c.now()}
	n := len(c.entries)
	c.mu.Unlock()
	CacheEntries.WithLabelValues(c.name).Set(float64(n))
}
