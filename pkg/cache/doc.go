// Package cache provides the two in-memory caches of the retrieval core.
//
// RequestCache holds small, numerous upstream responses (listings, document
// metadata) keyed by a normalized RequestKey:
//
//   - entries are valid for a fixed TTL and treated as absent once expired
//   - concurrent Resolve calls for the same key share one upstream load
//   - failed loads are never stored
//   - a background sweeper removes expired entries to bound memory
//
// BoundedCache holds a few large text payloads keyed by document id:
//
//   - fixed capacity, first-in-first-out eviction (reads do not refresh order)
//   - its own, longer TTL checked lazily on Get
//
// # Basic Usage
//
//	listings := cache.NewRequestCache[*catalog.Listing]("listings", cache.DefaultRequestCacheConfig())
//	go listings.StartSweeper(ctx, time.Minute)
//
//	key := cache.NewRequestKey("/books", url.Values{"topic": {"poetry"}, "page": {"1"}})
//	listing, err := listings.Resolve(ctx, key, func(ctx context.Context) (*catalog.Listing, error) {
//		return loadListing(ctx, key)
//	})
//
//	texts := cache.NewBoundedCache("texts", cache.DefaultBoundedCacheConfig())
//	texts.Put("1342", rawText)
//	if text, ok := texts.Get("1342"); ok {
//		// serve from memory
//	}
//
// # Metrics
//
//   - readabook_cache_hits_total{cache}
//   - readabook_cache_misses_total{cache}
//   - readabook_cache_coalesced_total{cache}
//   - readabook_cache_evictions_total{cache, reason}
//   - readabook_cache_entries{cache}
package cache
