// Package pipeline wires C3 (inbox append) through C9 (dispatch) into the
// single Ingest call every connector submits through, mirroring
// email-service/app/consumer/consumer.go's handleMessage stage order
// (idempotency check -> retry-wrapped processing -> terminal ack/DLQ),
// generalized here to Switchboard's longer stage chain: append, triage,
// optional classifier escalation, buffered dispatch, dead-letter capture
// on exhaustion.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/tzeusy/switchboard/internal/apperrors"
	"github.com/tzeusy/switchboard/internal/buffer"
	"github.com/tzeusy/switchboard/internal/classifier"
	"github.com/tzeusy/switchboard/internal/connectors"
	"github.com/tzeusy/switchboard/internal/contracts"
	"github.com/tzeusy/switchboard/internal/dlq"
	"github.com/tzeusy/switchboard/internal/inbox"
	"github.com/tzeusy/switchboard/internal/metrics"
	"github.com/tzeusy/switchboard/internal/router"
	"github.com/tzeusy/switchboard/internal/triage"
)

// Pipeline is the end-to-end ingress-to-dispatch orchestrator. Its
// Ingest method is the connectors.IngestFunc every connector calls.
type Pipeline struct {
	Inbox      *inbox.Store
	Triage     *triage.Evaluator
	Classifier *classifier.TimeoutFallback
	Dispatcher *router.Dispatcher
	Queue      *buffer.Queue
	DLQ        *dlq.Store
	Connectors *connectors.Store
	Log        zerolog.Logger
}

// Ingest runs the full pipeline for one inbound envelope: append (with
// dedupe), triage, optional classifier escalation, enqueue for dispatch,
// and synchronous dispatch execution. Buffering here is the admission
// check (Enqueue's Deferred/Accepted signal); actual execution still runs
// inline rather than via a separate drain loop, since C9's invariant is
// about backpressure at admission, not deferred execution timing.
func (p *Pipeline) Ingest(ctx context.Context, env contracts.IngressEnvelope) (contracts.IngestResponse, error) {
	rec, duplicate, err := p.Inbox.Append(ctx, env)
	if err != nil {
		return contracts.IngestResponse{}, err
	}
	metrics.RecordIngest(env.Source.Channel, env.Source.Provider)
	if duplicate {
		metrics.RecordDedupeHit()
		return contracts.IngestResponse{Status: "accepted", RequestID: rec.RequestID, Duplicate: true}, nil
	}

	tier := env.Control.PolicyTier
	if tier == "" {
		tier = "default"
	}
	enqueueResult := p.Queue.Enqueue(buffer.Item{Tier: buffer.Tier(tier), Payload: rec.RequestID})
	if !enqueueResult.Accepted {
		_ = p.Inbox.TransitionLifecycle(ctx, rec.RequestID, inbox.StateAccepted, inbox.StateFailed, map[string]any{"reason": "buffer_hard_limit"})
		return contracts.IngestResponse{}, apperrors.NewOverload("dispatch buffer at hard limit")
	}

	decision, parseSource, err := p.decide(ctx, env)
	if err != nil {
		p.deadLetter(ctx, rec, apperrors.CodeOf(err), err.Error())
		return contracts.IngestResponse{}, err
	}
	metrics.RecordTriageDecision(string(parseSource), string(decision.ParseSource))

	if len(decision.Targets) == 0 {
		if err := p.Inbox.TransitionLifecycle(ctx, rec.RequestID, inbox.StateAccepted, inbox.StateCompleted, map[string]any{"reason": "dropped_by_triage"}); err != nil {
			return contracts.IngestResponse{}, err
		}
		return contracts.IngestResponse{Status: "accepted", RequestID: rec.RequestID, Duplicate: false}, nil
	}

	if err := p.Inbox.TransitionLifecycle(ctx, rec.RequestID, inbox.StateAccepted, inbox.StateTriaged, nil); err != nil {
		return contracts.IngestResponse{}, err
	}
	rec.LifecycleState = inbox.StateTriaged

	outcomes, dispatchErr := p.Dispatcher.Run(ctx, p.Inbox, rec, decision, env.Event.ExternalThreadID)
	for _, o := range outcomes {
		outcome := "failure"
		if o.Success {
			outcome = "success"
		}
		metrics.RecordDispatch(o.Butler, outcome, time.Duration(o.DurationMs)*time.Millisecond)
		metrics.RecordDispatchOutcome(o.Butler, outcome, o.ErrorCategory)
		if o.Success {
			_ = p.Connectors.RecordFanout(ctx, env.Source.Provider, env.Source.EndpointIdentity, o.Butler)
		}
	}
	if dispatchErr != nil {
		p.deadLetter(ctx, rec, apperrors.CodeOf(dispatchErr), dispatchErr.Error())
	}

	return contracts.IngestResponse{Status: "accepted", RequestID: rec.RequestID, Duplicate: false}, nil
}

func (p *Pipeline) decide(ctx context.Context, env contracts.IngressEnvelope) (router.Decision, router.ParseSource, error) {
	triageDecision, err := p.Triage.Evaluate(ctx, env)
	if err != nil {
		return router.Decision{}, "", err
	}

	switch triageDecision.Action.Kind {
	case triage.ActionDrop:
		return router.Decision{}, router.ParseSourceTriage, nil
	case triage.ActionShortCircuitTo:
		return router.Decision{
			Targets:     []router.Target{{Butler: triageDecision.Action.Target, Prompt: triageDecision.Action.PromptTemplate, PromptVersion: "v1"}},
			FanoutMode:  router.FanoutSequential,
			JoinPolicy:  router.JoinAll,
			AbortPolicy: router.AbortStopOnFirstError,
			ParseSource: router.ParseSourceTriage,
		}, router.ParseSourceTriage, nil
	case triage.ActionBypassClassifierWith:
		targets := make([]router.Target, len(triageDecision.Action.Targets))
		for i, t := range triageDecision.Action.Targets {
			targets[i] = router.Target{Butler: t, PromptVersion: "v1"}
		}
		return router.Decision{
			Targets:     targets,
			FanoutMode:  router.FanoutParallel,
			JoinPolicy:  router.JoinAll,
			AbortPolicy: router.AbortContinue,
			ParseSource: router.ParseSourceTriage,
		}, router.ParseSourceTriage, nil
	default: // ActionEscalate
		d, err := p.Classifier.Classify(ctx, env)
		return d, router.ParseSourceClassifier, err
	}
}

func (p *Pipeline) deadLetter(ctx context.Context, rec *inbox.Record, code apperrors.Code, reason string) {
	category := dlq.CategoryFromCode(code)
	metrics.RecordDLQ(string(category))

	reqContext, _ := json.Marshal(map[string]any{"dedupe_key": rec.DedupeKey, "received_at": rec.ReceivedAt})

	if _, err := p.DLQ.Record(ctx, "message_inbox", rec.RequestID, reason, category, 0, rec.Envelope, reqContext, nil); err != nil {
		p.Log.Error().Err(err).Str("request_id", rec.RequestID).Msg("failed to write dead letter entry")
	}
	if err := p.Inbox.TransitionLifecycle(ctx, rec.RequestID, rec.LifecycleState, inbox.StateDeadLettered, map[string]any{"reason": reason}); err != nil {
		if err2 := p.Inbox.TransitionLifecycle(ctx, rec.RequestID, inbox.StateDispatching, inbox.StateDeadLettered, map[string]any{"reason": reason}); err2 != nil {
			if err3 := p.Inbox.TransitionLifecycle(ctx, rec.RequestID, inbox.StateFailed, inbox.StateDeadLettered, map[string]any{"reason": reason}); err3 != nil {
				p.Log.Error().Err(err3).Str("request_id", rec.RequestID).Msg("failed to mark record dead lettered")
			}
		}
	}
}
