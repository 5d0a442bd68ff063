package router

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tzeusy/switchboard/internal/apperrors"
	"github.com/tzeusy/switchboard/internal/inbox"
	"github.com/tzeusy/switchboard/internal/reliability/circuitbreaker"
	"github.com/tzeusy/switchboard/internal/reliability/ratelimit"
	"github.com/tzeusy/switchboard/internal/reliability/retry"
	"github.com/tzeusy/switchboard/internal/registry"
)

// Dispatcher executes a Decision against the butler registry, honoring
// fanout mode, join policy, abort policy, and the reliability fabric
// (circuit breaker, rate limiter, retry) per target.
//
// Stage order for a single target call mirrors
// email-service/app/consumer/consumer.go's handleMessage: admission
// checks first (there: idempotency; here: circuit + rate limit), then
// retry-wrapped execution, then outcome recording.
type Dispatcher struct {
	registry     *registry.Store
	breakers     *circuitbreaker.Registry
	limiter      *ratelimit.Bucket
	client       *HTTPClient
	retryCfg     *retry.Config
	threads      *ThreadSerializer
	instructions *InstructionCache
	log          zerolog.Logger
}

func NewDispatcher(
	reg *registry.Store,
	breakers *circuitbreaker.Registry,
	limiter *ratelimit.Bucket,
	client *HTTPClient,
	retryCfg *retry.Config,
	instructions *InstructionCache,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		registry:     reg,
		breakers:     breakers,
		limiter:      limiter,
		client:       client,
		retryCfg:     retryCfg,
		threads:      NewThreadSerializer(),
		instructions: instructions,
		log:          log,
	}
}

// targetResult is one target's dispatch outcome, with its index
// preserved so sequential/quorum ordering decisions can be made without
// re-sorting.
type targetResult struct {
	index   int
	outcome inbox.DispatchOutcome
	err     error
}

// Run dispatches rec according to decision and threadKey (empty if the
// envelope carries no thread affinity), and persists the post-dispatch
// lifecycle transition (completed or failed) via store. It returns the per-target outcomes in
// target order.
func (d *Dispatcher) Run(ctx context.Context, store *inbox.Store, rec *inbox.Record, decision Decision, threadKey string) ([]inbox.DispatchOutcome, error) {
	if err := store.TransitionLifecycle(ctx, rec.RequestID, rec.LifecycleState, inbox.StateDispatching, nil); err != nil {
		return nil, err
	}

	var outcomes []inbox.DispatchOutcome
	var runErr error

	d.threads.Run(threadKey, func() {
		switch decision.FanoutMode {
		case FanoutSequential:
			outcomes, runErr = d.runSequential(ctx, rec.RequestID, decision)
		default:
			outcomes, runErr = d.runParallel(ctx, rec.RequestID, decision)
		}
	})

	to := inbox.StateCompleted
	if !joinSatisfied(decision.JoinPolicy, decision.QuorumK, outcomes) {
		to = inbox.StateFailed
	}
	if err := store.RecordDispatchOutcomes(ctx, rec.RequestID, inbox.StateDispatching, to, outcomes); err != nil {
		return outcomes, err
	}
	return outcomes, runErr
}

func (d *Dispatcher) runSequential(ctx context.Context, requestID string, decision Decision) ([]inbox.DispatchOutcome, error) {
	outcomes := make([]inbox.DispatchOutcome, 0, len(decision.Targets))
	failures := 0
	for i, target := range decision.Targets {
		res := d.callTarget(ctx, requestID, i, target)
		outcomes = append(outcomes, res.outcome)
		if !res.outcome.Success {
			failures++
			switch decision.AbortPolicy {
			case AbortStopOnFirstError:
				return outcomes, res.err
			case AbortThreshold:
				if failures >= decision.ThresholdK {
					return outcomes, res.err
				}
			}
		}
		if decision.JoinPolicy == JoinFirstSuccess && res.outcome.Success {
			return outcomes, nil
		}
	}
	return outcomes, nil
}

func (d *Dispatcher) runParallel(ctx context.Context, requestID string, decision Decision) ([]inbox.DispatchOutcome, error) {
	results := make([]targetResult, len(decision.Targets))

	// quorum(k): cancel the remaining in-flight calls as soon as k targets
	// succeed, rather than waiting for every target to finish.
	runCtx := ctx
	var cancel context.CancelFunc
	if decision.JoinPolicy == JoinQuorum {
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i, target := range decision.Targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			res := d.callTarget(runCtx, requestID, i, target)
			results[i] = res

			if decision.JoinPolicy == JoinQuorum && res.outcome.Success {
				mu.Lock()
				successes++
				if successes >= decision.QuorumK {
					cancel()
				}
				mu.Unlock()
			}
		}(i, target)
	}
	wg.Wait()

	outcomes := make([]inbox.DispatchOutcome, len(results))
	for i, r := range results {
		outcomes[i] = r.outcome
	}
	return outcomes, nil
}

func (d *Dispatcher) callTarget(ctx context.Context, requestID string, index int, target Target) targetResult {
	start := time.Now()

	breaker := d.breakers.For(target.Butler)
	if err := breaker.Allow(); err != nil {
		return targetResult{index: index, outcome: inbox.DispatchOutcome{
			Butler: target.Butler, Success: false, DurationMs: 0,
			ErrorCategory: string(apperrors.CodeCircuitOpen),
		}, err: apperrors.NewCircuitOpen(target.Butler)}
	}

	admitted, _ := d.limiter.Admit(ctx, target.Butler, "default")
	if !admitted {
		return targetResult{index: index, outcome: inbox.DispatchOutcome{
			Butler: target.Butler, Success: false, DurationMs: 0,
			ErrorCategory: string(apperrors.CodeOverload),
		}, err: apperrors.NewOverload("rate limit exceeded for target " + target.Butler)}
	}

	entry, err := d.registry.Get(ctx, target.Butler)
	if err != nil {
		breaker.RecordFailure()
		return targetResult{index: index, outcome: inbox.DispatchOutcome{
			Butler: target.Butler, Success: false, DurationMs: 0,
			ErrorCategory: string(apperrors.CodePolicyViolation),
		}, err: err}
	}

	var status int
	callErr := retry.Retry(ctx, d.retryCfg, func(ctx context.Context) error {
		task := map[string]any{
			"request_id":     requestID,
			"target":         target.Butler,
			"prompt":         target.Prompt,
			"prompt_version": target.PromptVersion,
		}
		if d.instructions != nil {
			if rendered := d.instructions.Render(); rendered != "" {
				task["routing_instructions"] = rendered
			}
		}
		s, _, err := d.client.Deliver(ctx, requestID, entry.EndpointURL, task)
		status = s
		return err
	})

	duration := time.Since(start)

	if callErr != nil {
		breaker.RecordFailure()
		return targetResult{index: index, outcome: inbox.DispatchOutcome{
			Butler: target.Butler, Success: false, DurationMs: duration.Milliseconds(),
			ErrorCategory: string(apperrors.CodeOf(callErr)), HTTPStatus: status,
		}, err: callErr}
	}

	breaker.RecordSuccess()
	_ = d.registry.Heartbeat(ctx, target.Butler)
	return targetResult{index: index, outcome: inbox.DispatchOutcome{
		Butler: target.Butler, Success: true, DurationMs: duration.Milliseconds(), HTTPStatus: status,
	}}
}

// joinSatisfied reports whether outcomes meet decision's join policy.
func joinSatisfied(policy JoinPolicy, quorumK int, outcomes []inbox.DispatchOutcome) bool {
	successes := 0
	for _, o := range outcomes {
		if o.Success {
			successes++
		}
	}
	switch policy {
	case JoinFirstSuccess:
		return successes >= 1
	case JoinQuorum:
		return successes >= quorumK
	default: // JoinAll
		return successes == len(outcomes) && len(outcomes) > 0
	}
}
