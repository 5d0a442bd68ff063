package dlq

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tzeusy/switchboard/internal/apperrors"
	"github.com/tzeusy/switchboard/internal/connectors"
	"github.com/tzeusy/switchboard/internal/contracts"
)

// Replayer resubmits a dead-letter entry's original_payload through the
// same ingress sink a live connector would use, so a replayed message
// runs the full C1-C9 pipeline again rather than being dispatched
// directly — an operator forcing a replay gets the same validation and
// dedupe guarantees a first arrival would.
type Replayer struct {
	store *Store
	sink  connectors.IngestFunc
	log   zerolog.Logger
}

func NewReplayer(store *Store, sink connectors.IngestFunc, log zerolog.Logger) *Replayer {
	return &Replayer{store: store, sink: sink, log: log}
}

// Replay claims entry id and resubmits its original payload. A claim
// failure (already replayed, ineligible, or concurrently claimed) is
// returned as-is without touching replay_outcome.
func (r *Replayer) Replay(ctx context.Context, id string) (*Entry, error) {
	entry, err := r.store.ClaimForReplay(ctx, id)
	if err != nil {
		return nil, err
	}

	env, err := contracts.ParseIngestV1(entry.OriginalPayload)
	if err != nil {
		_ = r.store.RecordReplayOutcome(ctx, id, ReplayRejected, nil)
		return entry, apperrors.NewValidation("stored payload no longer parses as ingest.v1: " + err.Error())
	}

	resp, err := r.sink(ctx, *env)
	if err != nil {
		outcome := ReplayFailed
		if apperrors.CodeOf(err) == apperrors.CodeValidation || apperrors.CodeOf(err) == apperrors.CodePolicyViolation {
			outcome = ReplayRejected
		}
		if recErr := r.store.RecordReplayOutcome(ctx, id, outcome, nil); recErr != nil {
			r.log.Error().Err(recErr).Str("dlq_id", id).Msg("failed to record replay outcome")
		}
		return entry, err
	}

	if recErr := r.store.RecordReplayOutcome(ctx, id, ReplaySuccess, &resp.RequestID); recErr != nil {
		r.log.Error().Err(recErr).Str("dlq_id", id).Msg("failed to record replay outcome")
	}
	r.log.Info().Str("dlq_id", id).Str("new_request_id", resp.RequestID).Msg("dead letter entry replayed")
	return entry, nil
}
