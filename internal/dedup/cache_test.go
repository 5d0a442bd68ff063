package dedup

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis grounds on email-service/app/idempotency/store_test.go's
// miniredis.RunT + redis.NewClient setup.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCache_SeenIsFalseBeforeMark(t *testing.T) {
	c := NewCache(setupTestRedis(t))
	ctx := context.Background()

	_, hit, err := c.Seen(ctx, "dedupe-key-1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_MarkThenSeenReturnsStoredRequestID(t *testing.T) {
	c := NewCache(setupTestRedis(t))
	ctx := context.Background()

	require.NoError(t, c.Mark(ctx, "dedupe-key-1", "req-123"))

	requestID, hit, err := c.Seen(ctx, "dedupe-key-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "req-123", requestID)
}

func TestCache_DistinctDedupeKeysDoNotCollide(t *testing.T) {
	c := NewCache(setupTestRedis(t))
	ctx := context.Background()

	require.NoError(t, c.Mark(ctx, "dedupe-key-a", "req-a"))

	_, hit, err := c.Seen(ctx, "dedupe-key-b")
	require.NoError(t, err)
	assert.False(t, hit)
}
