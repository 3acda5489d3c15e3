package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the end of the back-off window of each upstream host.
type Store interface {
	// Until returns the end of host's current window, or the zero time if none is recorded.
	Until(ctx context.Context, host string) (time.Time, error)

	// Extend moves host's window end forward to until. An earlier value never
	// shortens a window that is already open.
	Extend(ctx context.Context, host string, until time.Time) error
}

// MemoryStore keeps the windows in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	until map[string]time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{until: make(map[string]time.Time)}
}

// Until implements Store.
func (s *MemoryStore) Until(_ context.Context, host string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.until[host], nil
}

// Extend implements Store.
func (s *MemoryStore) Extend(_ context.Context, host string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until.After(s.until[host]) {
		s.until[host] = until
	}
	return nil
}

// extendScript sets the key only when the new deadline is later than the
// stored one, and lets Redis expire it when the window closes.
var extendScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > cur then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	return 1
end
return 0
`)

// RedisStore shares the windows between instances that talk to the same upstreams.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: RedisKeyBackoffUntil,
		now:    time.Now,
	}
}

// Key returns the Redis key holding host's window.
func (s *RedisStore) Key(host string) string {
	return s.prefix + ":" + host
}

// Until implements Store.
func (s *RedisStore) Until(ctx context.Context, host string) (time.Time, error) {
	key := s.Key(host)
	ms, err := s.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("redis get %s: %w", key, err)
	}
	return time.UnixMilli(ms), nil
}

// Extend implements Store.
func (s *RedisStore) Extend(ctx context.Context, host string, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	key := s.Key(host)
	ms := strconv.FormatInt(until.UnixMilli(), 10)
	err := extendScript.Run(ctx, s.redis, []string{key}, ms, expireMillis(ttl)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis extend %s: %w", key, err)
	}
	return nil
}

// expireMillis converts a positive ttl to a PX argument. Redis rejects PX 0.
func expireMillis(ttl time.Duration) int64 {
	return max(ttl.Milliseconds(), 1)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
