package cache

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/readabook/pkg/fetch"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func listingKey(topic string) RequestKey {
	return NewRequestKey("/books", url.Values{"topic": {topic}})
}

func TestRequestCache_ResolveCachesValue(t *testing.T) {
	c := NewRequestCache[string]("test", DefaultRequestCacheConfig())
	var calls atomic.Int32
	load := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "poetry listing", nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.Resolve(context.Background(), listingKey("poetry"), load)
		require.NoError(t, err)
		assert.Equal(t, "poetry listing", got)
	}

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestRequestCache_EquivalentKeysShareEntry(t *testing.T) {
	c := NewRequestCache[int]("test", DefaultRequestCacheConfig())
	c.Put(NewRequestKey("/books", url.Values{"topic": {"poetry"}, "page": {"1"}}), 42)

	got, ok := c.Get(NewRequestKey("/books/", url.Values{"topic": {"poetry"}}))
	require.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestRequestCache_CoalescesConcurrentResolves(t *testing.T) {
	c := NewRequestCache[string]("test", DefaultRequestCacheConfig())
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "value", nil
	}

	const callers = 20
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Resolve(context.Background(), listingKey("drama"), load)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load(), "expected exactly one upstream load")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "value", results[i])
	}
}

func TestRequestCache_SharedFailureNotCached(t *testing.T) {
	c := NewRequestCache[string]("test", DefaultRequestCacheConfig())
	var calls atomic.Int32
	load := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", fetch.ErrTimeout
		}
		return "recovered", nil
	}

	_, err := c.Resolve(context.Background(), listingKey("poetry"), load)
	require.ErrorIs(t, err, fetch.ErrTimeout)
	assert.Equal(t, 0, c.Len())

	got, err := c.Resolve(context.Background(), listingKey("poetry"), load)
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRequestCache_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewRequestCache[string]("test", RequestCacheConfig{TTL: 10 * time.Minute, Now: clock.Now})
	var calls atomic.Int32
	load := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "value", nil
	}

	_, err := c.Resolve(context.Background(), listingKey("poetry"), load)
	require.NoError(t, err)

	clock.Advance(9*time.Minute + 59*time.Second)
	_, ok := c.Get(listingKey("poetry"))
	assert.True(t, ok, "entry should be fresh just before TTL")

	clock.Advance(time.Second)
	_, ok = c.Get(listingKey("poetry"))
	assert.False(t, ok, "entry should be absent at TTL")

	_, err = c.Resolve(context.Background(), listingKey("poetry"), load)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load(), "expired entry should trigger a new load")
}

func TestRequestCache_CancelledCallerDoesNotAbortLoad(t *testing.T) {
	c := NewRequestCache[string]("test", DefaultRequestCacheConfig())
	release := make(chan struct{})
	var loadCtxErr atomic.Value
	load := func(ctx context.Context) (string, error) {
		<-release
		if err := ctx.Err(); err != nil {
			loadCtxErr.Store(err)
		}
		return "value", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancelledErr := make(chan error, 1)
	go func() {
		_, err := c.Resolve(ctx, listingKey("poetry"), load)
		cancelledErr <- err
	}()

	patientVal := make(chan string, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		v, _ := c.Resolve(context.Background(), listingKey("poetry"), load)
		patientVal <- v
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-cancelledErr:
		assert.ErrorIs(t, err, fetch.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return promptly")
	}

	close(release)
	assert.Equal(t, "value", <-patientVal)
	assert.Nil(t, loadCtxErr.Load(), "load context should not be cancelled")

	got, ok := c.Get(listingKey("poetry"))
	require.True(t, ok, "load should still populate the cache")
	assert.Equal(t, "value", got)
}

func TestRequestCache_AlreadyCancelled(t *testing.T) {
	c := NewRequestCache[string]("test", DefaultRequestCacheConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := c.Resolve(ctx, listingKey("poetry"), func(ctx context.Context) (string, error) {
		called = true
		return "", nil
	})

	assert.ErrorIs(t, err, fetch.ErrCancelled)
	assert.False(t, called)
}

func TestRequestCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	c := NewRequestCache[int]("test", RequestCacheConfig{TTL: time.Minute, Now: clock.Now})

	c.Put(listingKey("old"), 1)
	clock.Advance(30 * time.Second)
	c.Put(listingKey("new"), 2)
	clock.Advance(45 * time.Second)

	removed := c.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get(listingKey("new"))
	assert.True(t, ok)
}

func TestRequestCache_StartSweeperStops(t *testing.T) {
	c := NewRequestCache[int]("test", DefaultRequestCacheConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.StartSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRequestCache_DeleteAndClear(t *testing.T) {
	c := NewRequestCache[int]("test", DefaultRequestCacheConfig())
	c.Put(listingKey("a"), 1)
	c.Put(listingKey("b"), 2)

	c.Delete(listingKey("a"))
	_, ok := c.Get(listingKey("a"))
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestRequestCache_Prefetch(t *testing.T) {
	c := NewRequestCache[string]("test", DefaultRequestCacheConfig())
	loaded := make(chan struct{})
	c.Prefetch(listingKey("poetry"), func(ctx context.Context) (string, error) {
		defer close(loaded)
		return "warm", nil
	})

	select {
	case <-loaded:
	case <-time.After(time.Second):
		t.Fatal("prefetch did not run")
	}

	require.Eventually(t, func() bool {
		_, ok := c.Get(listingKey("poetry"))
		return ok
	}, time.Second, 5*time.Millisecond)

	// fresh entry: no second load
	c.Prefetch(listingKey("poetry"), func(ctx context.Context) (string, error) {
		t.Error("prefetch should skip fresh entries")
		return "", errors.New("unexpected")
	})
}
