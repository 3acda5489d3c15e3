//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisStore_Integration_ExtendAndRead(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(client)
	ctx := context.Background()

	until, err := store.Until(ctx, "gutendex.com")
	if err != nil {
		t.Fatalf("Until on empty store: %v", err)
	}
	if !until.IsZero() {
		t.Fatalf("empty store returned %v, want zero time", until)
	}

	target := time.Now().Add(30 * time.Second).Truncate(time.Millisecond)
	if err := store.Extend(ctx, "gutendex.com", target); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}

	got, err := store.Until(ctx, "gutendex.com")
	if err != nil {
		t.Fatalf("Until failed: %v", err)
	}
	if !got.Equal(target) {
		t.Errorf("Until() = %v, want %v", got, target)
	}

	// An earlier deadline must not shorten the window.
	if err := store.Extend(ctx, "gutendex.com", target.Add(-20*time.Second)); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	got, _ = store.Until(ctx, "gutendex.com")
	if !got.Equal(target) {
		t.Errorf("window shrank to %v, want %v", got, target)
	}

	ttl, err := client.PTTL(ctx, "readabook:backoff:until:gutendex.com").Result()
	if err != nil {
		t.Fatalf("PTTL failed: %v", err)
	}
	if ttl <= 0 || ttl > 31*time.Second {
		t.Errorf("key TTL = %v, want within (0, 31s]", ttl)
	}

	other, err := store.Until(ctx, "www.gutenberg.org")
	if err != nil {
		t.Fatalf("Until failed: %v", err)
	}
	if !other.IsZero() {
		t.Errorf("other host window = %v, want zero time", other)
	}
}

func TestRedisStore_Integration_SubMillisecondWindow(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(client)
	now := time.Now()
	store.now = func() time.Time { return now }

	if err := store.Extend(context.Background(), "gutendex.com", now.Add(500*time.Microsecond)); err != nil {
		t.Fatalf("Extend with a sub-millisecond window failed: %v", err)
	}
}

func TestRedisStore_Integration_SharedBetweenTrackers(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	first := NewTracker(NewRedisStore(client), zerolog.Nop())
	second := NewTracker(NewRedisStore(client), zerolog.Nop())

	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": []string{"15"}},
	}
	if err := first.UpdateFromResponse(ctx, "gutendex.com", resp); err != nil {
		t.Fatalf("UpdateFromResponse failed: %v", err)
	}

	allowed, wait, err := second.ShouldAllowRequest(ctx, "gutendex.com")
	if err != nil {
		t.Fatalf("ShouldAllowRequest failed: %v", err)
	}
	if allowed {
		t.Fatal("second tracker should see the window opened by the first")
	}
	if wait <= 0 || wait > 15*time.Second {
		t.Errorf("wait = %v, want within (0, 15s]", wait)
	}
}
