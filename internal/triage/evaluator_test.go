package triage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tzeusy/switchboard/internal/contracts"
)

func seedRules(t *testing.T, rules []Rule) *RuleCache {
	t.Helper()
	cache := NewRuleCache(nil)
	err := cache.Refresh(context.Background(), func(context.Context) ([]Rule, error) {
		return rules, nil
	})
	require.NoError(t, err)
	return cache
}

func envelopeWithChannel(channel string) contracts.IngressEnvelope {
	var env contracts.IngressEnvelope
	env.Source.Channel = channel
	return env
}

func TestEvaluate_NoAffinityNoRuleMatch_Escalates(t *testing.T) {
	rules := seedRules(t, []Rule{
		{ID: "r1", Priority: 100, Enabled: true, Conditions: []Condition{ChannelIs("telegram")}, Action: Action{Kind: ActionShortCircuitTo, Target: "telegram-butler"}},
	})
	eval := NewEvaluator(rules, nil)

	decision, err := eval.Evaluate(context.Background(), envelopeWithChannel("email"))
	require.NoError(t, err)
	assert.Equal(t, ActionEscalate, decision.Action.Kind)
	assert.Empty(t, decision.MatchedRule)
}

func TestEvaluate_FirstMatchingRuleByPriorityWins(t *testing.T) {
	rules := seedRules(t, []Rule{
		{ID: "low-priority", Priority: 200, Enabled: true, Conditions: []Condition{ChannelIs("telegram")}, Action: Action{Kind: ActionShortCircuitTo, Target: "fallback-butler"}},
		{ID: "high-priority", Priority: 10, Enabled: true, Conditions: []Condition{ChannelIs("telegram")}, Action: Action{Kind: ActionShortCircuitTo, Target: "priority-butler"}},
	})
	eval := NewEvaluator(rules, nil)

	decision, err := eval.Evaluate(context.Background(), envelopeWithChannel("telegram"))
	require.NoError(t, err)
	assert.Equal(t, "high-priority", decision.MatchedRule)
	assert.Equal(t, "priority-butler", decision.Action.Target)
}

func TestEvaluate_DisabledRuleNeverMatches(t *testing.T) {
	rules := seedRules(t, []Rule{
		{ID: "disabled", Priority: 1, Enabled: false, Conditions: []Condition{ChannelIs("telegram")}, Action: Action{Kind: ActionDrop}},
	})
	eval := NewEvaluator(rules, nil)

	decision, err := eval.Evaluate(context.Background(), envelopeWithChannel("telegram"))
	require.NoError(t, err)
	assert.Equal(t, ActionEscalate, decision.Action.Kind)
}

func TestEvaluate_NilAffinityCacheDoesNotPanic(t *testing.T) {
	rules := seedRules(t, nil)
	eval := NewEvaluator(rules, nil)

	decision, err := eval.Evaluate(context.Background(), envelopeWithChannel("sms"))
	require.NoError(t, err)
	assert.Equal(t, ActionEscalate, decision.Action.Kind)
}
