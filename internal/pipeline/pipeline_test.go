package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tzeusy/switchboard/internal/classifier"
	"github.com/tzeusy/switchboard/internal/contracts"
	"github.com/tzeusy/switchboard/internal/router"
	"github.com/tzeusy/switchboard/internal/triage"
)

type spySink struct {
	calls int
}

func (s *spySink) Classify(ctx context.Context, env contracts.IngressEnvelope) (router.Decision, error) {
	s.calls++
	return router.Decision{Targets: []router.Target{{Butler: "general-butler"}}, ParseSource: router.ParseSourceClassifier}, nil
}

func evaluatorWithRule(rule triage.Rule) *triage.Evaluator {
	rules := triage.NewRuleCache(nil)
	_ = rules.Refresh(context.Background(), func(context.Context) ([]triage.Rule, error) {
		return []triage.Rule{rule}, nil
	})
	return triage.NewEvaluator(rules, nil)
}

func TestDecide_ShortCircuitRuleNeverInvokesClassifier(t *testing.T) {
	rule := triage.Rule{
		ID: "urgent", Priority: 10, Enabled: true,
		Conditions: []triage.Condition{triage.ChannelIs("sms")},
		Action:     triage.Action{Kind: triage.ActionShortCircuitTo, Target: "urgent-butler"},
	}
	spy := &spySink{}
	p := &Pipeline{
		Triage:     evaluatorWithRule(rule),
		Classifier: classifier.NewTimeoutFallback(spy, time.Second, "general-butler", zerolog.Nop()),
	}

	var env contracts.IngressEnvelope
	env.Source.Channel = "sms"

	decision, _, err := p.decide(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 0, spy.calls, "a matched short-circuit rule must never reach the classifier")
	require.Len(t, decision.Targets, 1)
	assert.Equal(t, "urgent-butler", decision.Targets[0].Butler)
	assert.Equal(t, router.AbortStopOnFirstError, decision.AbortPolicy)
}

func TestDecide_DropRuleYieldsNoTargetsWithoutClassifier(t *testing.T) {
	rule := triage.Rule{
		ID: "spam", Priority: 1, Enabled: true,
		Conditions: []triage.Condition{triage.ChannelIs("sms")},
		Action:     triage.Action{Kind: triage.ActionDrop},
	}
	spy := &spySink{}
	p := &Pipeline{
		Triage:     evaluatorWithRule(rule),
		Classifier: classifier.NewTimeoutFallback(spy, time.Second, "general-butler", zerolog.Nop()),
	}

	var env contracts.IngressEnvelope
	env.Source.Channel = "sms"

	decision, _, err := p.decide(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 0, spy.calls)
	assert.Empty(t, decision.Targets)
}

func TestDecide_NoMatchEscalatesToClassifier(t *testing.T) {
	rule := triage.Rule{
		ID: "unrelated", Priority: 1, Enabled: true,
		Conditions: []triage.Condition{triage.ChannelIs("email")},
		Action:     triage.Action{Kind: triage.ActionDrop},
	}
	spy := &spySink{}
	p := &Pipeline{
		Triage:     evaluatorWithRule(rule),
		Classifier: classifier.NewTimeoutFallback(spy, time.Second, "general-butler", zerolog.Nop()),
	}

	var env contracts.IngressEnvelope
	env.Source.Channel = "sms"

	decision, parseSource, err := p.decide(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, spy.calls, "no matching rule must fall through to the classifier")
	assert.Equal(t, router.ParseSourceClassifier, parseSource)
	require.Len(t, decision.Targets, 1)
	assert.Equal(t, "general-butler", decision.Targets[0].Butler)
}
