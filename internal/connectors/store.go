package connectors

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tzeusy/switchboard/internal/apperrors"
)

// Store is the pgx-backed repository behind connector_registry and its
// rollup aggregates (connector_stats_hourly/daily, connector_fanout_daily)
// from spec.md section 6's persisted-schema list. A connector owns only
// its source cursor and heartbeat (spec.md section 4.13), so the writes
// here are the connector-side analog of registry.Store's butler-side
// heartbeat, upserted the same ON CONFLICT ... DO UPDATE way.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Heartbeat upserts a connector_registry row and bumps last_heartbeat_at,
// mirroring registry.Store.Register/Heartbeat for the connector side of
// the ingress boundary.
func (s *Store) Heartbeat(ctx context.Context, connectorType, endpointIdentity, description string, capabilities json.RawMessage) error {
	if s == nil || s.pool == nil {
		return nil
	}
	caps := capabilities
	if len(caps) == 0 {
		caps = json.RawMessage("null")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO connector_registry (connector_type, endpoint_identity, description, capabilities, last_heartbeat_at)
		VALUES ($1, $2, $3, $4::jsonb, now())
		ON CONFLICT (connector_type, endpoint_identity) DO UPDATE SET
			description = $3, capabilities = $4::jsonb, last_heartbeat_at = now()
	`, connectorType, endpointIdentity, description, caps)
	if err != nil {
		return apperrors.NewDownstreamFailure("connector heartbeat failed", err)
	}
	return nil
}

// RecordIngest increments the current hour's and day's rollup counters
// for one connector. deduped counts toward dedupe_accepted instead of
// messages_ingested, matching message_inbox's own accepted-vs-deduped
// distinction (C2).
func (s *Store) RecordIngest(ctx context.Context, connectorType, endpointIdentity string, success, deduped bool) error {
	if s == nil || s.pool == nil {
		return nil
	}

	ingested, failed, dedupeAccepted := 0, 0, 0
	switch {
	case !success:
		failed = 1
	case deduped:
		dedupeAccepted = 1
	default:
		ingested = 1
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO connector_stats_hourly (connector_type, endpoint_identity, hour, messages_ingested, messages_failed, dedupe_accepted)
		VALUES ($1, $2, date_trunc('hour', now()), $3, $4, $5)
		ON CONFLICT (connector_type, endpoint_identity, hour) DO UPDATE SET
			messages_ingested = connector_stats_hourly.messages_ingested + $3,
			messages_failed = connector_stats_hourly.messages_failed + $4,
			dedupe_accepted = connector_stats_hourly.dedupe_accepted + $5
	`, connectorType, endpointIdentity, ingested, failed, dedupeAccepted)
	if err != nil {
		return apperrors.NewDownstreamFailure("record connector hourly rollup failed", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO connector_stats_daily (connector_type, endpoint_identity, day, messages_ingested, messages_failed, dedupe_accepted)
		VALUES ($1, $2, current_date, $3, $4, $5)
		ON CONFLICT (connector_type, endpoint_identity, day) DO UPDATE SET
			messages_ingested = connector_stats_daily.messages_ingested + $3,
			messages_failed = connector_stats_daily.messages_failed + $4,
			dedupe_accepted = connector_stats_daily.dedupe_accepted + $5
	`, connectorType, endpointIdentity, ingested, failed, dedupeAccepted)
	if err != nil {
		return apperrors.NewDownstreamFailure("record connector daily rollup failed", err)
	}
	return nil
}

// RecordFanout increments today's connector_fanout_daily counter for one
// (connector, target butler) pair, the per-destination breakdown spec.md
// section 6 lists alongside the hourly/daily stats rollups.
func (s *Store) RecordFanout(ctx context.Context, connectorType, endpointIdentity, targetButler string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO connector_fanout_daily (connector_type, endpoint_identity, target_butler, day, message_count)
		VALUES ($1, $2, $3, current_date, 1)
		ON CONFLICT (connector_type, endpoint_identity, target_butler, day) DO UPDATE SET
			message_count = connector_fanout_daily.message_count + 1
	`, connectorType, endpointIdentity, targetButler)
	if err != nil {
		return apperrors.NewDownstreamFailure("record connector fanout rollup failed", err)
	}
	return nil
}
