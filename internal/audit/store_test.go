package audit

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db, zerolog.Nop())

	mock.ExpectExec("INSERT INTO operator_audit_log").
		WithArgs(ActionCancelRequest, "req_1", "message_inbox", "operator_alice", "customer requested stop",
			[]byte(`{}`), OutcomeSuccess, []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.Record(context.Background(), Entry{
		ActionType:       ActionCancelRequest,
		TargetRequestID:  "req_1",
		TargetTable:      "message_inbox",
		OperatorIdentity: "operator_alice",
		Reason:           "customer requested stop",
		Outcome:          OutcomeSuccess,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListForRequest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db, zerolog.Nop())

	rows := sqlmock.NewRows([]string{
		"action_type", "target_request_id", "target_table", "operator_identity", "reason",
		"action_payload", "outcome", "outcome_details",
	}).AddRow(ActionForceComplete, "req_1", "message_inbox", "operator_bob", "stuck in dispatching",
		[]byte(`{}`), OutcomeSuccess, []byte(`{}`))

	mock.ExpectQuery("SELECT (.+) FROM operator_audit_log").WithArgs("req_1").WillReturnRows(rows)

	entries, err := store.ListForRequest(context.Background(), "req_1")
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, ActionForceComplete, entries[0].ActionType)
}
