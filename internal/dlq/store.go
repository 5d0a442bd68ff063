// Store uses database/sql + lib/pq rather than pgx, per the
// lower-throughput append-mostly persistence split this package shares
// with internal/audit — grounded on
// event-service/internal/infrastructure/db/postgres's database/sql
// repository style, unit-testable with go-sqlmock the same way.
package dlq

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/tzeusy/switchboard/internal/apperrors"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Record(ctx context.Context, sourceTable, originalRequestID, failureReason string, category FailureCategory, retryCount int, originalPayload, requestContext, errorDetails json.RawMessage) (*Entry, error) {
	if len(errorDetails) == 0 {
		errorDetails = json.RawMessage("{}")
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO dead_letter_queue
			(original_request_id, source_table, failure_reason, failure_category,
			 retry_count, original_payload, request_context, error_details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, original_request_id, source_table, failure_reason, failure_category,
		          retry_count, last_retry_at, original_payload, request_context, error_details,
		          replay_eligible, replayed_at, replayed_request_id, replay_outcome, created_at, updated_at
	`, originalRequestID, sourceTable, failureReason, category, retryCount, []byte(originalPayload), []byte(requestContext), []byte(errorDetails))
	return scanEntry(row)
}

func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, original_request_id, source_table, failure_reason, failure_category,
		       retry_count, last_retry_at, original_payload, request_context, error_details,
		       replay_eligible, replayed_at, replayed_request_id, replay_outcome, created_at, updated_at
		FROM dead_letter_queue WHERE id = $1
	`, id)
	return scanEntry(row)
}

// ListReplayable returns replay-eligible entries not yet replayed, oldest
// first, bounded by limit.
func (s *Store) ListReplayable(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, original_request_id, source_table, failure_reason, failure_category,
		       retry_count, last_retry_at, original_payload, request_context, error_details,
		       replay_eligible, replayed_at, replayed_request_id, replay_outcome, created_at, updated_at
		FROM dead_letter_queue
		WHERE replay_eligible = true AND replayed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperrors.NewDownstreamFailure("list replayable dlq entries failed", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

// ClaimForReplay claims one entry for exclusive replay, grounded on
// outbox_worker.go's FOR UPDATE SKIP LOCKED claim: two concurrent replay
// commands targeting the same entry never both proceed.
func (s *Store) ClaimForReplay(ctx context.Context, id string) (*Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewDownstreamFailure("begin claim tx failed", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, original_request_id, source_table, failure_reason, failure_category,
		       retry_count, last_retry_at, original_payload, request_context, error_details,
		       replay_eligible, replayed_at, replayed_request_id, replay_outcome, created_at, updated_at
		FROM dead_letter_queue
		WHERE id = $1 AND replay_eligible = true AND replayed_at IS NULL
		FOR UPDATE SKIP LOCKED
	`, id)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE dead_letter_queue SET replayed_at = now(), updated_at = now() WHERE id = $1`, id); err != nil {
		return nil, apperrors.NewDownstreamFailure("mark claim failed", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewDownstreamFailure("commit claim tx failed", err)
	}
	return entry, nil
}

func (s *Store) RecordReplayOutcome(ctx context.Context, id string, outcome ReplayOutcome, replayedRequestID *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dead_letter_queue
		SET replayed_at = now(), replayed_request_id = $2, replay_outcome = $3, updated_at = now()
		WHERE id = $1
	`, id, replayedRequestID, outcome)
	if err != nil {
		return apperrors.NewDownstreamFailure("record replay outcome failed", err)
	}
	return nil
}

// row is the subset of *sql.Row / *sql.Rows this package scans from.
type row interface {
	Scan(dest ...any) error
}

func scanEntry(r row) (*Entry, error) {
	return scan(r)
}

func scanRows(r *sql.Rows) (*Entry, error) {
	return scan(r)
}

func scan(r row) (*Entry, error) {
	var e Entry
	var lastRetryAt, replayedAt sql.NullTime
	var replayedRequestID, replayOutcome sql.NullString

	if err := r.Scan(
		&e.ID, &e.OriginalRequestID, &e.SourceTable, &e.FailureReason, &e.FailureCategory,
		&e.RetryCount, &lastRetryAt, &e.OriginalPayload, &e.RequestContext, &e.ErrorDetails,
		&e.ReplayEligible, &replayedAt, &replayedRequestID, &replayOutcome, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewPolicyViolation("dead letter entry not found or not claimable")
		}
		return nil, apperrors.NewDownstreamFailure("scan dead_letter_queue row failed", err)
	}

	if lastRetryAt.Valid {
		e.LastRetryAt = &lastRetryAt.Time
	}
	if replayedAt.Valid {
		e.ReplayedAt = &replayedAt.Time
	}
	if replayedRequestID.Valid {
		e.ReplayedRequestID = &replayedRequestID.String
	}
	if replayOutcome.Valid {
		oc := ReplayOutcome(replayOutcome.String)
		e.ReplayOutcome = &oc
	}
	return &e, nil
}
