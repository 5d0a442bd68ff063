package triage

import (
	"context"

	"github.com/tzeusy/switchboard/internal/contracts"
)

// ParseSource mirrors router.ParseSource's values used on RouteDecision;
// declared here too so triage stays decoupled from the router package.
type ParseSource string

const (
	ParseSourceTriage ParseSource = "triage"
)

// Decision is triage's verdict for one envelope: either a terminal action
// (short-circuit / bypass / drop) or escalate, meaning "invoke the
// classifier."
type Decision struct {
	Action      Action
	ParseSource ParseSource
	MatchedRule string // rule ID, empty when affinity-driven or escalated
}

// Evaluator walks thread affinity then rules, in the order spec.md
// section 4.4 describes.
type Evaluator struct {
	Rules    *RuleCache
	Affinity *AffinityCache
}

func NewEvaluator(rules *RuleCache, affinity *AffinityCache) *Evaluator {
	return &Evaluator{Rules: rules, Affinity: affinity}
}

// Evaluate runs thread-affinity lookup then rule evaluation. No I/O other
// than the affinity lookup happens here — rule conditions are pure.
func (e *Evaluator) Evaluate(ctx context.Context, env contracts.IngressEnvelope) (Decision, error) {
	if target, hit, err := e.Affinity.Lookup(ctx, env.Source.Channel, env.Event.ExternalThreadID); err != nil {
		return Decision{}, err
	} else if hit {
		return Decision{
			Action:      Action{Kind: ActionBypassClassifierWith, Targets: []string{target}},
			ParseSource: ParseSourceTriage,
		}, nil
	}

	for _, rule := range e.Rules.Rules() {
		if rule.Matches(env) {
			return Decision{Action: rule.Action, ParseSource: ParseSourceTriage, MatchedRule: rule.ID}, nil
		}
	}

	return Decision{Action: Action{Kind: ActionEscalate}}, nil
}
