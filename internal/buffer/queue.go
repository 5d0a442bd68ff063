// Package buffer implements C9: a tiered priority queue with a
// starvation guard, plus backpressure signaling at maxDepth/hardLimit.
//
// Grounded on email-service/app/consumer/worker_pool.go's single-channel
// job queue, generalized here from one FIFO channel into N FIFOs (one per
// policy tier) feeding a single dequeue loop with a starvation guard —
// the teacher has no multi-tier concept, so the tiering and guard logic
// is original to this spec, built in the teacher's plain-channels-and-
// mutex idiom rather than reaching for an external priority-queue
// library no example repo uses for this shape.
package buffer

import (
	"container/list"
	"sync"
)

// Tier is a policy tier name; higher tiers are served ahead of lower,
// subject to the starvation guard. Order in Tiers is highest to lowest.
type Tier string

const (
	TierRealtime Tier = "realtime"
	TierDefault  Tier = "default"
	TierBulk     Tier = "bulk"
)

// Tiers is the fixed precedence order used when scanning for the next
// non-empty tier.
var Tiers = []Tier{TierRealtime, TierDefault, TierBulk}

// Item is one buffered unit of dispatch work.
type Item struct {
	Tier    Tier
	Payload any
}

// Queue is a tiered FIFO with a starvation guard: after S consecutive
// dequeues from a higher tier, the next dequeue is forced from the
// highest non-empty lower tier (invariant 8).
type Queue struct {
	mu               sync.Mutex
	lists            map[Tier]*list.List
	starvationLimit  int
	consecutiveHigh  int
	maxDepth         int
	hardLimit        int
}

func NewQueue(starvationLimit, maxDepth, hardLimit int) *Queue {
	lists := make(map[Tier]*list.List, len(Tiers))
	for _, t := range Tiers {
		lists[t] = list.New()
	}
	return &Queue{lists: lists, starvationLimit: starvationLimit, maxDepth: maxDepth, hardLimit: hardLimit}
}

// depthLocked returns the total queued items across all tiers. Caller
// must hold q.mu.
func (q *Queue) depthLocked() int {
	total := 0
	for _, l := range q.lists {
		total += l.Len()
	}
	return total
}

// Depth returns the total queued items across all tiers.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depthLocked()
}

// DepthByTier returns the queued count for one tier.
func (q *Queue) DepthByTier(t Tier) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lists[t].Len()
}

// EnqueueResult reports what happened to an Enqueue call.
type EnqueueResult struct {
	Accepted bool
	Deferred bool
}

// Enqueue admits an item unless the tier is bulk and the queue is at
// hardLimit, per spec.md section 4.9's backpressure rule. At maxDepth,
// ingress is still accepted but flagged Deferred for the caller to
// reflect in the record's lifecycle metadata.
func (q *Queue) Enqueue(item Item) EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	depth := q.depthLocked()
	if depth >= q.hardLimit && item.Tier == TierBulk {
		return EnqueueResult{Accepted: false, Deferred: false}
	}

	q.lists[item.Tier].PushBack(item)
	return EnqueueResult{Accepted: true, Deferred: depth >= q.maxDepth}
}

// Dequeue pops the next item honoring tier precedence and the starvation
// guard. Returns ok=false if every tier is empty.
func (q *Queue) Dequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.consecutiveHigh >= q.starvationLimit {
		for i := 1; i < len(Tiers); i++ {
			t := Tiers[i]
			if el := q.lists[t].Front(); el != nil {
				q.lists[t].Remove(el)
				q.consecutiveHigh = 0
				return el.Value.(Item), true
			}
		}
		// no lower tier has work; fall through to normal precedence
	}

	for i, t := range Tiers {
		if el := q.lists[t].Front(); el != nil {
			q.lists[t].Remove(el)
			if i == 0 {
				q.consecutiveHigh++
			} else {
				q.consecutiveHigh = 0
			}
			return el.Value.(Item), true
		}
	}
	return Item{}, false
}
