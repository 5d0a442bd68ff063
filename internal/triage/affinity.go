package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AffinityCache maps (channel, external_thread_id) -> last_target_butler
// with a TTL, used to pin conversational continuity. Grounded on
// email-service/app/idempotency/store.go's TTL-keyed Redis pattern,
// repurposed from a dedup marker to a value cache.
type AffinityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAffinityCache(client *redis.Client, ttl time.Duration) *AffinityCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AffinityCache{client: client, ttl: ttl}
}

func (a *AffinityCache) key(channel, threadID string) string {
	return fmt.Sprintf("switchboard:affinity:%s:%s", channel, threadID)
}

// Lookup returns the last target butler for (channel, threadID), if any.
func (a *AffinityCache) Lookup(ctx context.Context, channel, threadID string) (string, bool, error) {
	if a == nil || a.client == nil || threadID == "" {
		return "", false, nil
	}
	v, err := a.client.Get(ctx, a.key(channel, threadID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Pin records the target butler a thread was last routed to.
func (a *AffinityCache) Pin(ctx context.Context, channel, threadID, targetButler string) error {
	if a == nil || a.client == nil || threadID == "" {
		return nil
	}
	return a.client.Set(ctx, a.key(channel, threadID), targetButler, a.ttl).Err()
}
