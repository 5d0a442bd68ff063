// Package dlq implements C10: terminal-failure capture and operator
// replay for requests that exhaust retries, trip a circuit permanently,
// or are rejected outright.
//
// Grounded on
// original_source/roster/switchboard/migrations/011_create_dead_letter_queue.py
// for the schema, and
// join-service/internal/infrastructure/postgres/outbox_worker.go's
// claim-with-FOR-UPDATE-SKIP-LOCKED pattern for replay so concurrent
// operator replay commands never double-replay the same entry.
package dlq

import (
	"encoding/json"
	"time"

	"github.com/tzeusy/switchboard/internal/apperrors"
)

// FailureCategory mirrors the dead_letter_queue.failure_category CHECK
// constraint. Each apperrors.Code has a category of the same name except
// CodeOverload, which has none and maps to FailureUnknown.
type FailureCategory string

const (
	FailureTimeout           FailureCategory = "timeout"
	FailureRetryExhausted    FailureCategory = "retry_exhausted"
	FailureCircuitOpen       FailureCategory = "circuit_open"
	FailurePolicyViolation   FailureCategory = "policy_violation"
	FailureValidationError   FailureCategory = "validation_error"
	FailureDownstreamFailure FailureCategory = "downstream_failure"
	FailureUnknown           FailureCategory = "unknown"
)

// CategoryFromCode maps an apperrors.Code to its dead_letter_queue
// failure_category value.
func CategoryFromCode(code apperrors.Code) FailureCategory {
	switch code {
	case apperrors.CodeTimeout:
		return FailureTimeout
	case apperrors.CodeRetryExhausted:
		return FailureRetryExhausted
	case apperrors.CodeCircuitOpen:
		return FailureCircuitOpen
	case apperrors.CodePolicyViolation:
		return FailurePolicyViolation
	case apperrors.CodeValidation:
		return FailureValidationError
	case apperrors.CodeDownstreamFailure:
		return FailureDownstreamFailure
	default:
		return FailureUnknown
	}
}

type ReplayOutcome string

const (
	ReplaySuccess  ReplayOutcome = "success"
	ReplayFailed   ReplayOutcome = "failed"
	ReplayRejected ReplayOutcome = "rejected"
)

// Entry is a dead_letter_queue row.
type Entry struct {
	ID                 string          `json:"id"`
	OriginalRequestID  string          `json:"original_request_id"`
	SourceTable        string          `json:"source_table"`
	FailureReason      string          `json:"failure_reason"`
	FailureCategory    FailureCategory `json:"failure_category"`
	RetryCount         int             `json:"retry_count"`
	LastRetryAt        *time.Time      `json:"last_retry_at,omitempty"`
	OriginalPayload    json.RawMessage `json:"original_payload"`
	RequestContext     json.RawMessage `json:"request_context"`
	ErrorDetails       json.RawMessage `json:"error_details,omitempty"`
	ReplayEligible     bool            `json:"replay_eligible"`
	ReplayedAt         *time.Time      `json:"replayed_at,omitempty"`
	ReplayedRequestID  *string         `json:"replayed_request_id,omitempty"`
	ReplayOutcome      *ReplayOutcome  `json:"replay_outcome,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
