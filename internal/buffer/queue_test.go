package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_TierPrecedence(t *testing.T) {
	q := NewQueue(100, 100, 100)
	q.Enqueue(Item{Tier: TierBulk, Payload: "bulk-1"})
	q.Enqueue(Item{Tier: TierDefault, Payload: "default-1"})
	q.Enqueue(Item{Tier: TierRealtime, Payload: "realtime-1"})

	item, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, TierRealtime, item.Tier)

	item, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, TierDefault, item.Tier)

	item, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, TierBulk, item.Tier)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestQueue_StarvationGuardForcesLowerTier(t *testing.T) {
	q := NewQueue(2, 100, 100)
	for i := 0; i < 3; i++ {
		q.Enqueue(Item{Tier: TierRealtime, Payload: i})
	}
	q.Enqueue(Item{Tier: TierBulk, Payload: "bulk-1"})

	item, _ := q.Dequeue()
	assert.Equal(t, TierRealtime, item.Tier)
	item, _ = q.Dequeue()
	assert.Equal(t, TierRealtime, item.Tier)

	// third dequeue: guard trips (2 consecutive realtime hits), forces the
	// highest non-empty lower tier (bulk, the only one with work) ahead of
	// the still-queued third realtime item.
	item, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, TierBulk, item.Tier)

	item, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, TierRealtime, item.Tier)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestQueue_StarvationGuardPrefersDefaultOverBulk(t *testing.T) {
	q := NewQueue(2, 100, 100)
	for i := 0; i < 3; i++ {
		q.Enqueue(Item{Tier: TierRealtime, Payload: i})
	}
	q.Enqueue(Item{Tier: TierBulk, Payload: "bulk-1"})
	q.Enqueue(Item{Tier: TierDefault, Payload: "default-1"})

	q.Dequeue()
	q.Dequeue()

	// third dequeue: guard trips with both default and bulk non-empty —
	// the highest non-empty *lower* tier is default, not bulk.
	item, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, TierDefault, item.Tier, "starvation guard must yield to default before bulk")
}

func TestQueue_EnqueueRejectsBulkAtHardLimit(t *testing.T) {
	q := NewQueue(5, 1, 2)
	q.Enqueue(Item{Tier: TierRealtime, Payload: 1})
	q.Enqueue(Item{Tier: TierDefault, Payload: 2})

	res := q.Enqueue(Item{Tier: TierBulk, Payload: 3})
	assert.False(t, res.Accepted)

	// non-bulk tiers are still admitted past hardLimit.
	res = q.Enqueue(Item{Tier: TierRealtime, Payload: 4})
	assert.True(t, res.Accepted)
}

func TestQueue_EnqueueDefersPastMaxDepth(t *testing.T) {
	q := NewQueue(5, 1, 100)
	res := q.Enqueue(Item{Tier: TierRealtime, Payload: 1})
	assert.True(t, res.Accepted)
	assert.False(t, res.Deferred)

	res = q.Enqueue(Item{Tier: TierRealtime, Payload: 2})
	assert.True(t, res.Accepted)
	assert.True(t, res.Deferred)
}

func TestQueue_DepthAndDepthByTier(t *testing.T) {
	q := NewQueue(5, 100, 100)
	q.Enqueue(Item{Tier: TierRealtime, Payload: 1})
	q.Enqueue(Item{Tier: TierBulk, Payload: 2})
	q.Enqueue(Item{Tier: TierBulk, Payload: 3})

	assert.Equal(t, 3, q.Depth())
	assert.Equal(t, 1, q.DepthByTier(TierRealtime))
	assert.Equal(t, 2, q.DepthByTier(TierBulk))
	assert.Equal(t, 0, q.DepthByTier(TierDefault))
}
