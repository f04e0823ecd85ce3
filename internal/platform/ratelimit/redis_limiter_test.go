package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/knppkp/pollboard/internal/domain"
)

func TestRedisLimiterRespectsLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRedisLimiter(client, 2, time.Minute, "rl")

	userID := domain.UserID("01USER")
	origin := "200.1.1.1"

	ctx := context.Background()
	if err := limiter.Allow(ctx, userID, origin); err != nil {
		t.Fatalf("first request should pass, got: %v", err)
	}
	if err := limiter.Allow(ctx, userID, origin); err != nil {
		t.Fatalf("second request should pass, got: %v", err)
	}

	if err := limiter.Allow(ctx, userID, origin); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("third request should be blocked, got: %v", err)
	}

	key := limiter.buildKey(userID, origin)
	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("expected positive TTL for %s, got %v", key, ttl)
	}
}

func TestRedisLimiterResetsAfterWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	window := 30 * time.Second
	limiter := NewRedisLimiter(client, 1, window, "rl")

	userID := domain.UserID("01USER")
	origin := "200.2.2.2"

	ctx := context.Background()
	if err := limiter.Allow(ctx, userID, origin); err != nil {
		t.Fatalf("initial request should pass: %v", err)
	}
	if err := limiter.Allow(ctx, userID, origin); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("second request inside the window should fail: %v", err)
	}

	mr.FastForward(window + time.Second)

	if err := limiter.Allow(ctx, userID, origin); err != nil {
		t.Fatalf("after the window expires the request should pass: %v", err)
	}
}

func TestRedisLimiterIsolatesOrigins(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRedisLimiter(client, 1, time.Minute, "rl")

	userID := domain.UserID("01USER")

	ctx := context.Background()
	if err := limiter.Allow(ctx, userID, "10.0.0.1"); err != nil {
		t.Fatalf("first origin should pass: %v", err)
	}
	if err := limiter.Allow(ctx, userID, "10.0.0.2"); err != nil {
		t.Fatalf("a different origin keeps its own window: %v", err)
	}
}

func TestRedisLimiterWithNilClientIsPermissive(t *testing.T) {
	limiter := NewRedisLimiter(nil, 1, time.Minute, "rl")

	if err := limiter.Allow(context.Background(), "01USER", "10.0.0.1"); err != nil {
		t.Fatalf("nil client should never block: %v", err)
	}
}

func TestNoopAlwaysAllows(t *testing.T) {
	limiter := NewNoop()

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := limiter.Allow(ctx, "01USER", "10.0.0.1"); err != nil {
			t.Fatalf("noop throttle must never block: %v", err)
		}
	}
}
