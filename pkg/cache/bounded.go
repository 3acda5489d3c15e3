package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultBoundedCapacity is the default number of resident payloads.
	DefaultBoundedCapacity = 20

	// DefaultBoundedTTL is the default payload validity period.
	DefaultBoundedTTL = 24 * time.Hour
)

// BoundedCacheConfig holds bounded cache configuration.
type BoundedCacheConfig struct {
	// Capacity is the maximum number of entries. Zero means DefaultBoundedCapacity.
	Capacity int

	// TTL is the entry validity period. Zero means DefaultBoundedTTL.
	TTL time.Duration

	// Now is the clock used for freshness checks. Defaults to time.Now.
	Now func() time.Time
}

// DefaultBoundedCacheConfig returns the default configuration.
func DefaultBoundedCacheConfig() BoundedCacheConfig {
	return BoundedCacheConfig{
		Capacity: DefaultBoundedCapacity,
		TTL:      DefaultBoundedTTL,
	}
}

type boundedItem struct {
	id    string
	entry Entry[string]
}

// BoundedCache is a fixed-capacity FIFO cache of text payloads.
//
// Insertion order decides eviction: reading an entry does not move it, and
// re-inserting an existing id moves it to the newest position.
type BoundedCache struct {
	name     string
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	order *list.List // front = oldest
	index map[string]*list.Element
}

// NewBoundedCache creates a bounded cache. name labels metrics.
func NewBoundedCache(name string, cfg BoundedCacheConfig) *BoundedCache {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultBoundedCapacity
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultBoundedTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &BoundedCache{
		name:     name,
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Capacity returns the maximum number of entries.
func (c *BoundedCache) Capacity() int {
	return c.capacity
}

// Get returns the payload for id if present and fresh.
// Expired entries are removed on access.
func (c *BoundedCache) Get(id string) (string, bool) {
	return c.lookup(id, true)
}

// Peek is Get without recording a hit or miss. Callers use it to re-check
// the cache after a counted Get.
func (c *BoundedCache) Peek(id string) (string, bool) {
	return c.lookup(id, false)
}

func (c *BoundedCache) lookup(id string, count bool) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[id]
	if !ok {
		if count {
			CacheMisses.WithLabelValues(c.name).Inc()
		}
		return "", false
	}

	item := el.Value.(*boundedItem)
	if !item.entry.Fresh(c.ttl, c.now()) {
		c.remove(el)
		CacheEvictions.WithLabelValues(c.name, "expired").Inc()
		if count {
			CacheMisses.WithLabelValues(c.name).Inc()
		}
		return "", false
	}

	if count {
		CacheHits.WithLabelValues(c.name).Inc()
	}
	return item.entry.Value, true
}

// Put stores text under id, evicting the oldest entries while full.
func (c *BoundedCache) Put(id, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[id]; ok {
		c.remove(el)
	}

	for c.order.Len() >= c.capacity {
		c.remove(c.order.Front())
		CacheEvictions.WithLabelValues(c.name, "capacity").Inc()
	}

	item := &boundedItem{id: id, entry: Entry[string]{Value: text, StoredAt: c.now()}}
	c.index[id] = c.order.PushBack(item)
	CacheEntries.WithLabelValues(c.name).Set(float64(c.order.Len()))
}

// Len returns the number of resident entries.
func (c *BoundedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns resident ids from oldest to newest.
func (c *BoundedCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*boundedItem).id)
	}
	return keys
}

// Clear removes all entries.
func (c *BoundedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[string]*list.Element)
	CacheEntries.WithLabelValues(c.name).Set(0)
}

// remove must be called with mu held.
func (c *BoundedCache) remove(el *list.Element) {
	item := c.order.Remove(el).(*boundedItem)
	delete(c.index, item.id)
	CacheEntries.WithLabelValues(c.name).Set(float64(c.order.Len()))
}
