package cache

import "time"

// Entry is a cached value and the time it was stored.
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
}

// Age returns how long ago the entry was stored.
func (e Entry[V]) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Fresh reports whether the entry is still valid under ttl.
// An entry is valid only while now - StoredAt < ttl.
func (e Entry[V]) Fresh(ttl time.Duration, now time.Time) bool {
	return e.Age(now) < ttl
}
