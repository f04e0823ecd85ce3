// Package ratelimit throttles vote submissions (Redis fixed window plus a noop mode).
package ratelimit

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/knppkp/pollboard/internal/domain"
)

var ErrLimitExceeded = fmt.Errorf("vote rate limit reached")

// RedisLimiter caps votes per user/origin in fixed windows using Redis.
type RedisLimiter struct {
	client    *redis.Client
	limit     int
	window    time.Duration
	keyPrefix string
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{
		client:    client,
		limit:     limit,
		window:    window,
		keyPrefix: prefix,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, userID domain.UserID, origin string) error {
	if r.client == nil || r.limit <= 0 || r.window <= 0 {
		// Invalid settings fall back to the permissive mode.
		return nil
	}

	key := r.buildKey(userID, origin)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("ratelimit: incr failed: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return fmt.Errorf("ratelimit: expire failed: %w", err)
		}
	}

	if int(count) > r.limit {
		return ErrLimitExceeded
	}

	return nil
}

func (r *RedisLimiter) buildKey(userID domain.UserID, origin string) string {
	// SHA-1 keeps user ids and origins out of plain Redis keys.
	base := fmt.Sprintf("%s|%s", userID, origin)
	hash := sha1.Sum([]byte(base))
	return fmt.Sprintf("%s:%s", r.keyPrefix, hex.EncodeToString(hash[:]))
}

var _ domain.VoteThrottle = (*RedisLimiter)(nil)
