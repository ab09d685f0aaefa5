package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"qris-gateway/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// PaidCache implements ports.PaidCache, the fast-path mirror of
// PaidTxRepository. A cache miss falls back to the durable Postgres
// table; this store only ever shortens that lookup.
type PaidCache struct {
	client *goredis.Client
	prefix string
}

// NewPaidCache creates a new Redis-backed paid cache.
func NewPaidCache(client *goredis.Client) *PaidCache {
	return &PaidCache{client: client, prefix: "paid:"}
}

func (c *PaidCache) key(principal string, finalAmount int64, env domain.Env) string {
	return fmt.Sprintf("%s%s:%s:%d", c.prefix, env, principal, finalAmount)
}

// Get returns the cached paid transaction, or nil on a miss.
func (c *PaidCache) Get(ctx context.Context, principal string, finalAmount int64, env domain.Env) (*domain.PaidTransaction, error) {
	val, err := c.client.Get(ctx, c.key(principal, finalAmount, env)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis paid cache get: %w", err)
	}
	var p domain.PaidTransaction
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, fmt.Errorf("unmarshal cached paid transaction: %w", err)
	}
	return &p, nil
}

// Set caches a paid transaction for ttl.
func (c *PaidCache) Set(ctx context.Context, p *domain.PaidTransaction, ttl time.Duration) error {
	val, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal paid transaction: %w", err)
	}
	if err := c.client.Set(ctx, c.key(p.Principal, p.FinalAmount, p.Env), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis paid cache set: %w", err)
	}
	return nil
}
