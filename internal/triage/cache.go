package triage

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RuleCache holds an immutable, priority-ordered snapshot of triage rules,
// swapped atomically on refresh (copy-on-write), per spec.md section 5's
// "registry cache is copy-on-write" guidance applied here to the triage
// rule set as well.
type RuleCache struct {
	pool    *pgxpool.Pool
	current atomic.Pointer[[]Rule]
}

func NewRuleCache(pool *pgxpool.Pool) *RuleCache {
	c := &RuleCache{pool: pool}
	empty := []Rule{}
	c.current.Store(&empty)
	return c
}

// Rules returns the current immutable snapshot, ordered priority ASC,
// created_at ASC (stable tie-break, per spec.md section 4.4).
func (c *RuleCache) Rules() []Rule {
	return *c.current.Load()
}

// Refresh reloads rules from Postgres and atomically swaps the snapshot.
// Loader is injected so tests can avoid a real database.
func (c *RuleCache) Refresh(ctx context.Context, load func(context.Context) ([]Rule, error)) error {
	rules, err := load(ctx)
	if err != nil {
		return err
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	c.current.Store(&rules)
	return nil
}

// StartRefreshLoop runs Refresh on the given interval until ctx is
// canceled. Errors are swallowed into the caller-provided onErr callback
// so a transient DB hiccup never stops the in-process cache from serving
// its last-known-good snapshot.
func (c *RuleCache) StartRefreshLoop(ctx context.Context, interval time.Duration, load func(context.Context) ([]Rule, error), onErr func(error)) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Refresh(ctx, load); err != nil && onErr != nil {
					onErr(err)
				}
			}
		}
	}()
}
