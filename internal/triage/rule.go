// Package triage implements pre-classification rule evaluation and thread
// affinity lookups, gating the costly downstream classifier.
//
// Grounded on original_source's butlers.tools.switchboard.triage module
// boundary (cache / evaluator / thread_affinity split) and, for the
// in-process cache shape (reloaded on a fixed interval; no change
// counter is consulted), on the teacher's
// general "load config once, refresh periodically" style seen across
// join-service/event-service config loaders.
package triage

import (
	"strings"
	"time"

	"github.com/tzeusy/switchboard/internal/contracts"
)

// Action is a side-effect-free structured descriptor; execution happens in
// the router (C6), never here.
type ActionKind string

const (
	ActionShortCircuitTo      ActionKind = "short_circuit_to"
	ActionBypassClassifierWith ActionKind = "bypass_classifier_with"
	ActionEscalate            ActionKind = "escalate"
	ActionDrop                ActionKind = "drop"
)

type Action struct {
	Kind           ActionKind
	Target         string
	PromptTemplate string
	Targets        []string
}

// Condition is a pure predicate over envelope fields. No I/O.
type Condition func(contracts.IngressEnvelope) bool

// Rule is a single versioned, cached triage rule.
type Rule struct {
	ID         string
	Priority   int
	Conditions []Condition
	Action     Action
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Matches reports whether every condition holds (AND semantics).
func (r Rule) Matches(env contracts.IngressEnvelope) bool {
	if !r.Enabled {
		return false
	}
	for _, cond := range r.Conditions {
		if !cond(env) {
			return false
		}
	}
	return true
}

// ChannelIs is a condition constructor matching on source.channel.
func ChannelIs(channel string) Condition {
	channel = strings.ToLower(channel)
	return func(env contracts.IngressEnvelope) bool {
		return strings.ToLower(env.Source.Channel) == channel
	}
}

// TextStartsWith is a condition constructor matching the raw payload text.
func TextStartsWith(prefix string) Condition {
	return func(env contracts.IngressEnvelope) bool {
		return strings.HasPrefix(env.Payload.Raw, prefix)
	}
}
