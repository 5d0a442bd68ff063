package inbox

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tzeusy/switchboard/internal/contracts"
	"github.com/tzeusy/switchboard/internal/dedup"
	"github.com/tzeusy/switchboard/internal/migrate"
)

// TestStore_Append_SecondArrivalIsDeduped exercises S1/invariant 1: two
// Append calls for the same (endpoint_identity, sender.identity,
// external_event_id) must yield exactly one message_inbox row, with the
// second call reporting duplicate=true against the first call's
// request_id. No Redis fast path here (dedup.NewCache(nil) fails open to
// Postgres), so this test exercises the authoritative partial-unique-index
// path directly, grounded on
// baechuer-real-time-ressys/services/auth-service/app/config/db_test.go's
// postgres.RunContainer + testing.Short() skip-guard shape.
func TestStore_Append_SecondArrivalIsDeduped(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers-backed integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:17"),
		postgres.WithDatabase("switchboard_test"),
		postgres.WithUsername("switchboard"),
		postgres.WithPassword("switchboard"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrationDB, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer migrationDB.Close()

	require.NoError(t, migrate.Run(ctx, migrationDB, []migrate.Source{
		{Name: "inbox", FS: Migrations},
	}))

	// message_inbox is range-partitioned on received_at; the migration
	// only creates the parent table, so the test provisions one wide,
	// fixed-bound partition directly rather than duplicating
	// internal/inbox's partition-maintenance logic here (partition bounds
	// must be constant expressions, so a literal range is used instead of
	// now()-relative bounds).
	_, err = migrationDB.Exec(`
		CREATE TABLE IF NOT EXISTS message_inbox_test_partition
		PARTITION OF message_inbox
		FOR VALUES FROM ('2000-01-01') TO ('2100-01-01')
	`)
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	store := NewStore(pool, dedup.NewCache(nil))

	var env contracts.IngressEnvelope
	env.SchemaVersion = contracts.SchemaIngestV1
	env.Source.Channel = "telegram"
	env.Source.Provider = "telegram_bot"
	env.Source.EndpointIdentity = "bot-42"
	env.Event.ExternalEventID = "evt-dedup-1"
	env.Sender.Identity = "user-1"
	env.Payload.Raw = "hello"

	first, dup1, err := store.Append(ctx, env)
	require.NoError(t, err)
	assert.False(t, dup1)
	require.NotEmpty(t, first.RequestID)

	second, dup2, err := store.Append(ctx, env)
	require.NoError(t, err)
	assert.True(t, dup2, "second Append of the same envelope must report duplicate=true")
	assert.Equal(t, first.RequestID, second.RequestID, "duplicate arrivals must resolve to the same request_id")

	var rowCount int
	require.NoError(t, migrationDB.QueryRow(`SELECT count(*) FROM message_inbox WHERE dedupe_key = $1`, first.DedupeKey).Scan(&rowCount))
	assert.Equal(t, 1, rowCount, "exactly one row must exist per stable dedupe key")
}
