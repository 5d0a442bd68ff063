// Package ratelimit implements a per-(target, policy_tier) token bucket
// admission control, per spec.md section 4.8 / invariant 7: admissions
// over any window never exceed capacity + refill_rate * elapsed.
//
// Grounded on email-service/app/ratelimit/ratelimit.go's Redis
// INCR+EXPIRE fixed-window counter and its fail-open-on-Redis-error
// posture, reworked from a fixed window into a true token bucket (state
// stored as two keys read and written by a Lua GET/SET script instead of
// INCR, since a fixed
// window cannot express "capacity + refill_rate*elapsed" admission, only
// "count <= N per window").
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// refillScript atomically computes the current token count, admits if
// >= 1, and persists the updated state. Evaluated server-side so
// concurrent admissions across processes never double-spend a token.
const refillScript = `
local tokens_key = KEYS[1]
local updated_key = KEYS[2]
local capacity = tonumber(ARGV[1])
local refill_per_sec = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = tonumber(redis.call('GET', tokens_key))
local updated = tonumber(redis.call('GET', updated_key))

if tokens == nil then
  tokens = capacity
  updated = now
end

local elapsed = now - updated
if elapsed < 0 then elapsed = 0 end
tokens = math.min(capacity, tokens + elapsed * refill_per_sec)

local admitted = 0
if tokens >= 1 then
  tokens = tokens - 1
  admitted = 1
end

redis.call('SET', tokens_key, tostring(tokens), 'EX', 3600)
redis.call('SET', updated_key, tostring(now), 'EX', 3600)

return admitted
`

// Bucket is a Redis-backed token bucket limiter keyed by (target, tier).
type Bucket struct {
	client       *redis.Client
	script       *redis.Script
	capacity     float64
	refillPerSec float64
}

func NewBucket(client *redis.Client, capacity, refillPerSec float64) *Bucket {
	return &Bucket{
		client:       client,
		script:       redis.NewScript(refillScript),
		capacity:     capacity,
		refillPerSec: refillPerSec,
	}
}

// Admit reports whether a call for (target, tier) may proceed right now.
// Fails open on Redis errors, matching the teacher's ratelimit posture —
// admission control degrading open is preferable to the reliability
// fabric itself becoming a single point of failure.
func (b *Bucket) Admit(ctx context.Context, target, tier string) (bool, error) {
	if b.client == nil {
		return true, nil
	}

	tokensKey := fmt.Sprintf("switchboard:bucket:%s:%s:tokens", target, tier)
	updatedKey := fmt.Sprintf("switchboard:bucket:%s:%s:updated", target, tier)
	now := float64(time.Now().UnixNano()) / 1e9

	res, err := b.script.Run(ctx, b.client, []string{tokensKey, updatedKey}, b.capacity, b.refillPerSec, now).Result()
	if err != nil {
		return true, nil
	}
	admitted, _ := res.(int64)
	return admitted == 1, nil
}
