package redis

import (
	"fmt"
	"time"

	"context"

	"qris-gateway/internal/core/ports"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// RateLimitStore implements ports.RateLimiter using a fixed-window
// counter backed by Redis.
type RateLimitStore struct {
	client *goredis.Client
	prefix string
}

// NewRateLimitStore creates a new Redis-backed rate limit store.
func NewRateLimitStore(client *goredis.Client) *RateLimitStore {
	return &RateLimitStore{
		client: client,
		prefix: "ratelimit:",
	}
}

// Allow checks if a request from merchantID is within limit for the
// current window. It uses a fixed-window counter: INCR + EXPIRE on a
// key scoped by windowID, where windowID is time / window.
func (s *RateLimitStore) Allow(ctx context.Context, merchantID uuid.UUID, limit int, window time.Duration) (ports.RateLimitResult, error) {
	now := time.Now()
	windowSeconds := int64(window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	windowID := now.Unix() / windowSeconds
	redisKey := fmt.Sprintf("%s%s:%d", s.prefix, merchantID, windowID)

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return ports.RateLimitResult{}, fmt.Errorf("redis rate limit incr: %w", err)
	}

	// Set expiry only on first increment (new window).
	if count == 1 {
		s.client.Expire(ctx, redisKey, window+time.Second)
	}

	resetAt := time.Unix((windowID+1)*windowSeconds, 0)
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}

	return ports.RateLimitResult{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}, nil
}
