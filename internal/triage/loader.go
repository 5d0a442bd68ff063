// Loader compiles triage_rules rows (condition/action stored as JSONB
// descriptors) into the in-memory Rule shape RuleCache serves, the way
// RuleCache.Refresh's injected load func expects.
package triage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tzeusy/switchboard/internal/apperrors"
)

type conditionSpec struct {
	Kind   string `json:"kind"`
	Value  string `json:"value"`
}

type actionSpec struct {
	Kind           string   `json:"kind"`
	Target         string   `json:"target,omitempty"`
	PromptTemplate string   `json:"prompt_template,omitempty"`
	Targets        []string `json:"targets,omitempty"`
}

// NewLoader returns a load func bound to pool, suitable for
// RuleCache.Refresh/StartRefreshLoop.
func NewLoader(pool *pgxpool.Pool) func(context.Context) ([]Rule, error) {
	return func(ctx context.Context) ([]Rule, error) {
		rows, err := pool.Query(ctx, `
			SELECT id, priority, conditions, action, enabled, created_at, updated_at
			FROM triage_rules
			WHERE enabled = true
		`)
		if err != nil {
			return nil, apperrors.NewDownstreamFailure("loading triage rules failed", err)
		}
		defer rows.Close()

		var out []Rule
		for rows.Next() {
			var (
				id                   string
				priority             int
				conditionsJSON       []byte
				actionJSON           []byte
				enabled              bool
				createdAt, updatedAt time.Time
			)
			if err := rows.Scan(&id, &priority, &conditionsJSON, &actionJSON, &enabled, &createdAt, &updatedAt); err != nil {
				return nil, apperrors.NewDownstreamFailure("scanning triage rule failed", err)
			}

			rule, err := compileRule(id, priority, enabled, createdAt, updatedAt, conditionsJSON, actionJSON)
			if err != nil {
				continue // skip malformed rows rather than fail the whole refresh
			}
			out = append(out, rule)
		}
		return out, nil
	}
}

func compileRule(id string, priority int, enabled bool, createdAt, updatedAt time.Time, conditionsJSON, actionJSON []byte) (Rule, error) {
	var specs []conditionSpec
	if err := json.Unmarshal(conditionsJSON, &specs); err != nil {
		return Rule{}, err
	}
	var act actionSpec
	if err := json.Unmarshal(actionJSON, &act); err != nil {
		return Rule{}, err
	}

	conditions := make([]Condition, 0, len(specs))
	for _, s := range specs {
		switch s.Kind {
		case "channel_is":
			conditions = append(conditions, ChannelIs(s.Value))
		case "text_starts_with":
			conditions = append(conditions, TextStartsWith(s.Value))
		}
	}

	return Rule{
		ID:       id,
		Priority: priority,
		Conditions: conditions,
		Action: Action{
			Kind:           ActionKind(act.Kind),
			Target:         act.Target,
			PromptTemplate: act.PromptTemplate,
			Targets:        act.Targets,
		},
		Enabled:   enabled,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}
