package dlq

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tzeusy/switchboard/internal/apperrors"
)

func TestStore_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "original_request_id", "source_table", "failure_reason", "failure_category",
		"retry_count", "last_retry_at", "original_payload", "request_context", "error_details",
		"replay_eligible", "replayed_at", "replayed_request_id", "replay_outcome", "created_at", "updated_at",
	}).AddRow(
		"dlq_1", "req_1", "message_inbox", "max retries exceeded", "retry_exhausted",
		3, nil, []byte(`{}`), []byte(`{}`), []byte(`{}`),
		true, nil, nil, nil, now, now,
	)

	mock.ExpectQuery("INSERT INTO dead_letter_queue").
		WithArgs("req_1", "message_inbox", "max retries exceeded", FailureRetryExhausted, 3, []byte(`{"a":1}`), []byte(`{}`), []byte(`{}`)).
		WillReturnRows(rows)

	entry, err := store.Record(context.Background(), "message_inbox", "req_1", "max retries exceeded", FailureRetryExhausted, 3, json.RawMessage(`{"a":1}`), json.RawMessage(`{}`), nil)
	assert.NoError(t, err)
	assert.Equal(t, "dlq_1", entry.ID)
	assert.True(t, entry.ReplayEligible)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	mock.ExpectQuery("SELECT (.+) FROM dead_letter_queue").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	entry, err := store.Get(context.Background(), "missing")
	assert.Error(t, err)
	assert.Nil(t, entry)
}

func TestCategoryFromCode(t *testing.T) {
	cases := map[apperrors.Code]FailureCategory{
		apperrors.CodeTimeout:           FailureTimeout,
		apperrors.CodeRetryExhausted:    FailureRetryExhausted,
		apperrors.CodeCircuitOpen:       FailureCircuitOpen,
		apperrors.CodePolicyViolation:   FailurePolicyViolation,
		apperrors.CodeValidation:        FailureValidationError,
		apperrors.CodeDownstreamFailure: FailureDownstreamFailure,
		apperrors.CodeUnknown:           FailureUnknown,
	}
	for code, want := range cases {
		assert.Equal(t, want, CategoryFromCode(code), code)
	}
}
