// Package router implements C6: given a RouteDecision, constructs
// per-target dispatch tasks and runs them under the fanout/join/abort
// policy, honoring the reliability fabric.
//
// Grounded on email-service/app/consumer/worker_pool.go's bounded
// worker-pool shape (generalized here to a per-request fan-out instead of
// a per-process consumer pool) and
// email-service/app/consumer/consumer.go's end-to-end per-message
// pipeline (idempotency check -> retry -> DLQ-or-ack), whose stage
// ordering this package's Dispatcher.Run mirrors for the dispatch phase.
package router

import (
	"context"

	"github.com/tzeusy/switchboard/internal/contracts"
)

type FanoutMode string

const (
	FanoutSequential FanoutMode = "sequential"
	FanoutParallel   FanoutMode = "parallel"
)

type JoinPolicy string

const (
	JoinAll          JoinPolicy = "all"
	JoinFirstSuccess JoinPolicy = "first_success"
	JoinQuorum       JoinPolicy = "quorum"
)

type AbortPolicy string

const (
	AbortStopOnFirstError AbortPolicy = "stop_on_first_error"
	AbortContinue         AbortPolicy = "continue"
	AbortThreshold        AbortPolicy = "threshold"
)

type ParseSource string

const (
	ParseSourceTriage     ParseSource = "triage"
	ParseSourceClassifier ParseSource = "classifier"
	ParseSourceFallback   ParseSource = "fallback"
)

// Target is one candidate dispatch destination for a RouteDecision.
type Target struct {
	Butler        string
	Prompt        string
	PromptVersion string
	Confidence    float64
}

// Decision is the ephemeral routing plan produced by triage or the
// classifier. It is never persisted directly; only its outcome lands in
// the InboxRecord's dispatch_outcomes.
type Decision struct {
	Targets     []Target
	FanoutMode  FanoutMode
	JoinPolicy  JoinPolicy
	QuorumK     int // only meaningful when JoinPolicy == JoinQuorum
	AbortPolicy AbortPolicy
	ThresholdK  int // only meaningful when AbortPolicy == AbortThreshold
	ParseSource ParseSource
}

// ClassifierSink is the narrow interface the router calls into when
// triage escalates. Declared here (not in package classifier) so that
// classifier can depend on router.Decision without an import cycle.
type ClassifierSink interface {
	Classify(ctx context.Context, envelope contracts.IngressEnvelope) (Decision, error)
}
