package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tzeusy/switchboard/internal/apperrors"
	"github.com/tzeusy/switchboard/internal/contracts"
	"github.com/tzeusy/switchboard/internal/dedup"
)

const uniqueViolation = "23505"

// Store is the pgxpool-backed message_inbox repository.
type Store struct {
	pool  *pgxpool.Pool
	cache *dedup.Cache
}

func NewStore(pool *pgxpool.Pool, cache *dedup.Cache) *Store {
	return &Store{pool: pool, cache: cache}
}

// Append inserts a new InboxRecord for env, or returns the existing record
// (duplicate=true) if its dedupe key was already seen. This is the single
// write path satisfying invariant 1: exactly one InboxRecord per stable
// dedupe key, second arrival returns the same request_id.
func (s *Store) Append(ctx context.Context, env contracts.IngressEnvelope) (*Record, bool, error) {
	dedupeKey := dedup.Key(env)

	if s.cache != nil {
		if existingID, hit, err := s.cache.Seen(ctx, dedupeKey); err == nil && hit {
			rec, err := s.GetByRequestID(ctx, existingID)
			if err == nil {
				return rec, true, nil
			}
			// cache said seen but Postgres disagrees (evicted/rolled-back
			// row) — fall through to the authoritative insert path.
		}
	}

	envBytes, err := json.Marshal(env)
	if err != nil {
		return nil, false, apperrors.NewValidation(fmt.Sprintf("cannot marshal envelope: %v", err))
	}

	requestID := uuid.NewString()
	receivedAt := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, apperrors.NewDownstreamFailure("begin tx failed", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO message_inbox
			(request_id, received_at, envelope, dedupe_key, schema_version, direction, lifecycle_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, requestID, receivedAt, envBytes, dedupeKey, env.SchemaVersion, DirectionInbound, StateAccepted)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			_ = tx.Rollback(ctx)
			existing, lookupErr := s.lookupByDedupeKey(ctx, dedupeKey)
			if lookupErr != nil {
				return nil, false, apperrors.NewDownstreamFailure("dedupe lookup after conflict failed", lookupErr)
			}
			if s.cache != nil {
				_ = s.cache.Mark(ctx, dedupeKey, existing.RequestID)
			}
			return existing, true, nil
		}
		return nil, false, apperrors.NewDownstreamFailure("insert message_inbox failed", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, apperrors.NewDownstreamFailure("commit tx failed", err)
	}

	if s.cache != nil {
		_ = s.cache.Mark(ctx, dedupeKey, requestID)
	}

	return &Record{
		RequestID:      requestID,
		ReceivedAt:     receivedAt,
		Envelope:       envBytes,
		DedupeKey:      dedupeKey,
		SchemaVersion:  env.SchemaVersion,
		Direction:      DirectionInbound,
		LifecycleState: StateAccepted,
	}, false, nil
}

func (s *Store) lookupByDedupeKey(ctx context.Context, dedupeKey string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT request_id, received_at, envelope, dedupe_key, schema_version, direction,
		       lifecycle_state, triage_outcome, classification, dispatch_outcomes, processing_metadata
		FROM message_inbox
		WHERE dedupe_key = $1
		ORDER BY received_at DESC
		LIMIT 1
	`, dedupeKey)
	return scanRecord(row)
}

func (s *Store) GetByRequestID(ctx context.Context, requestID string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT request_id, received_at, envelope, dedupe_key, schema_version, direction,
		       lifecycle_state, triage_outcome, classification, dispatch_outcomes, processing_metadata
		FROM message_inbox
		WHERE request_id = $1
	`, requestID)
	return scanRecord(row)
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var dispatchOutcomes json.RawMessage
	if err := row.Scan(
		&rec.RequestID, &rec.ReceivedAt, &rec.Envelope, &rec.DedupeKey, &rec.SchemaVersion, &rec.Direction,
		&rec.LifecycleState, &rec.TriageOutcome, &rec.Classification, &dispatchOutcomes, &rec.ProcessingMetadata,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewDownstreamFailure("inbox record not found", err)
		}
		return nil, apperrors.NewDownstreamFailure("scan inbox record failed", err)
	}
	if len(dispatchOutcomes) > 0 {
		_ = json.Unmarshal(dispatchOutcomes, &rec.DispatchOutcomes)
	}
	return &rec, nil
}

// TransitionLifecycle applies a conditional UPDATE guarding against lost
// transitions: it only succeeds if the row is currently in `from`. Zero
// rows affected means someone else already moved the record forward, or
// it is already in a terminal state (invariant 2: completed/dead_lettered
// never regress).
func (s *Store) TransitionLifecycle(ctx context.Context, requestID string, from, to LifecycleState, patch map[string]any) error {
	if from.Terminal() {
		return apperrors.NewPolicyViolation(fmt.Sprintf("cannot transition out of terminal state %q", from))
	}

	metaJSON, err := json.Marshal(patch)
	if err != nil {
		return apperrors.NewUnknown("cannot marshal lifecycle patch", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE message_inbox
		SET lifecycle_state = $1,
		    processing_metadata = COALESCE(processing_metadata, '{}'::jsonb) || $2::jsonb
		WHERE request_id = $3 AND lifecycle_state = $4
	`, to, metaJSON, requestID, from)
	if err != nil {
		return apperrors.NewDownstreamFailure("lifecycle transition failed", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewPolicyViolation(fmt.Sprintf("stale transition: request %s not in state %q", requestID, from))
	}
	return nil
}

// RecordDispatchOutcomes appends outcomes and moves the record to its
// post-dispatch state (completed or failed), in one conditional update.
func (s *Store) RecordDispatchOutcomes(ctx context.Context, requestID string, from LifecycleState, to LifecycleState, outcomes []DispatchOutcome) error {
	outcomesJSON, err := json.Marshal(outcomes)
	if err != nil {
		return apperrors.NewUnknown("cannot marshal dispatch outcomes", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE message_inbox
		SET lifecycle_state = $1, dispatch_outcomes = $2::jsonb
		WHERE request_id = $3 AND lifecycle_state = $4
	`, to, outcomesJSON, requestID, from)
	if err != nil {
		return apperrors.NewDownstreamFailure("recording dispatch outcomes failed", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewPolicyViolation(fmt.Sprintf("stale transition: request %s not in state %q", requestID, from))
	}
	return nil
}
