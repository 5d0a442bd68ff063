// Package classifier wraps the one-shot LLM classification call behind
// the router.ClassifierSink interface, so Switchboard never depends on a
// concrete LLM runtime (out of scope per spec.md section 1).
//
// Grounded on event-service/internal/application/event/ports.go's
// narrow-interface "port" pattern and
// email-service/internal/application/notify/handler.go's Sender
// interface, both examples of the teacher hiding an external system
// behind a single-method Go interface injected at construction time.
package classifier

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tzeusy/switchboard/internal/contracts"
	"github.com/tzeusy/switchboard/internal/router"
)

// TimeoutFallback wraps an injected router.ClassifierSink, enforces a
// timeout budget, and on timeout or error falls back to a configured
// default target rather than retrying synchronously — preserving the
// end-to-end latency budget per spec.md section 4.5.
type TimeoutFallback struct {
	Inner         router.ClassifierSink
	Timeout       time.Duration
	DefaultTarget string
	Log           zerolog.Logger
}

func NewTimeoutFallback(inner router.ClassifierSink, timeout time.Duration, defaultTarget string, log zerolog.Logger) *TimeoutFallback {
	return &TimeoutFallback{Inner: inner, Timeout: timeout, DefaultTarget: defaultTarget, Log: log}
}

func (f *TimeoutFallback) Classify(ctx context.Context, envelope contracts.IngressEnvelope) (router.Decision, error) {
	cctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	type result struct {
		decision router.Decision
		err      error
	}
	done := make(chan result, 1)
	go func() {
		d, err := f.Inner.Classify(cctx, envelope)
		done <- result{d, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			f.Log.Warn().Err(r.err).Msg("classifier call failed, falling back")
			return f.fallback(), nil
		}
		return r.decision, nil
	case <-cctx.Done():
		f.Log.Warn().Str("request_id", envelope.Event.ExternalEventID).Msg("classifier timeout, falling back")
		return f.fallback(), nil
	}
}

func (f *TimeoutFallback) fallback() router.Decision {
	return router.Decision{
		Targets: []router.Target{{
			Butler:        f.DefaultTarget,
			PromptVersion: "v1",
		}},
		FanoutMode:  router.FanoutSequential,
		JoinPolicy:  router.JoinAll,
		AbortPolicy: router.AbortStopOnFirstError,
		ParseSource: router.ParseSourceFallback,
	}
}
