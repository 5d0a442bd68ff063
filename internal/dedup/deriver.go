// Package dedup derives stable dedupe keys for inbound envelopes and
// provides a fast-path Redis existence check ahead of the authoritative
// Postgres partial-unique-index insert in internal/inbox.
//
// Grounded on email-service/app/idempotency/{checker,store}.go's
// sha256-derived message ID and SETNX-based atomic check-and-mark.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/tzeusy/switchboard/internal/contracts"
)

// Key derives the stable dedupe key for an envelope:
// hash(source.endpoint_identity || sender.identity || event.external_event_id).
func Key(env contracts.IngressEnvelope) string {
	h := sha256.New()
	h.Write([]byte(env.Source.EndpointIdentity))
	h.Write([]byte{0})
	h.Write([]byte(env.Sender.Identity))
	h.Write([]byte{0})
	h.Write([]byte(env.Event.ExternalEventID))
	return hex.EncodeToString(h.Sum(nil))
}
