package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a Redis-backed fast path in front of the authoritative
// Postgres unique index. It is an optimization only: a Redis outage
// fails open to Postgres, never open to accepting duplicates — the
// Postgres unique-violation path in internal/inbox remains the source
// of truth.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client, ttl: 48 * time.Hour}
}

func (c *Cache) key(dedupeKey string) string {
	return fmt.Sprintf("switchboard:dedupe:%s", dedupeKey)
}

// Seen returns (requestID, true, nil) if dedupeKey was already marked seen,
// and ("", false, nil) otherwise. Redis errors are returned so the caller
// can fall back to the Postgres check rather than assume either outcome.
func (c *Cache) Seen(ctx context.Context, dedupeKey string) (string, bool, error) {
	if c == nil || c.client == nil {
		return "", false, nil
	}
	v, err := c.client.Get(ctx, c.key(dedupeKey)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Mark records dedupeKey -> requestID so a subsequent Seen call short-circuits.
func (c *Cache) Mark(ctx context.Context, dedupeKey, requestID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, c.key(dedupeKey), requestID, c.ttl).Err()
}
