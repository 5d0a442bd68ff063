// Store uses database/sql + lib/pq, per the append-mostly persistence
// split shared with internal/dlq — grounded on
// event-service/internal/infrastructure/db/postgres's database/sql
// repository style.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/tzeusy/switchboard/internal/apperrors"
)

// Store is the database/sql-backed operator_audit_log writer. There is
// intentionally no Update/Delete method — the table's triggers reject
// both, and so does this package's surface.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Bool("audit", true).Logger()}
}

// Record persists one operator action. It logs alongside the write,
// grounded on join-service/internal/audit/logger.go's action-named Info
// lines, so an audit event is visible in both the durable table and the
// live log stream.
func (s *Store) Record(ctx context.Context, e Entry) error {
	payload := e.ActionPayload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	details := e.OutcomeDetails
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operator_audit_log
			(action_type, target_request_id, target_table, operator_identity, reason,
			 action_payload, outcome, outcome_details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ActionType, e.TargetRequestID, e.TargetTable, e.OperatorIdentity, e.Reason, []byte(payload), e.Outcome, []byte(details))
	if err != nil {
		return apperrors.NewDownstreamFailure("recording operator audit entry failed", err)
	}

	s.log.Info().
		Str("action", string(e.ActionType)).
		Str("target_request_id", e.TargetRequestID).
		Str("operator_identity", e.OperatorIdentity).
		Str("outcome", string(e.Outcome)).
		Str("reason", e.Reason).
		Msg("operator action recorded")
	return nil
}

// ListForRequest returns every audit entry touching a given request, in
// performed_at order — the attribution trail an operator reviewing a
// contested action would pull up first.
func (s *Store) ListForRequest(ctx context.Context, requestID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action_type, target_request_id, target_table, operator_identity, reason,
		       action_payload, outcome, outcome_details
		FROM operator_audit_log
		WHERE target_request_id = $1
		ORDER BY performed_at ASC
	`, requestID)
	if err != nil {
		return nil, apperrors.NewDownstreamFailure("list audit entries failed", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ActionType, &e.TargetRequestID, &e.TargetTable, &e.OperatorIdentity, &e.Reason,
			&e.ActionPayload, &e.Outcome, &e.OutcomeDetails); err != nil {
			return nil, apperrors.NewDownstreamFailure("scan audit entry failed", err)
		}
		out = append(out, e)
	}
	return out, nil
}
