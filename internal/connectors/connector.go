// Package connectors holds the external-source adapters (C13) that
// translate inbound events into ingest.v1 envelopes and submit them
// through a single entry point. Connectors are stateless with respect to
// routing — they own only their source cursor, heartbeat, and ack state.
package connectors

import (
	"context"

	"github.com/tzeusy/switchboard/internal/contracts"
)

// IngestFunc is the single entry point every connector submits parsed
// envelopes through. Parsing and validation (C1) happen in the connector
// before the call; the func runs C3 (inbox append) through triage,
// classification and dispatch, and returns the canonical ingest response.
type IngestFunc func(ctx context.Context, env contracts.IngressEnvelope) (contracts.IngestResponse, error)

// Connector is an external-source adapter. Start blocks until ctx is
// canceled or an unrecoverable error occurs.
type Connector interface {
	Start(ctx context.Context, sink IngestFunc) error
}
