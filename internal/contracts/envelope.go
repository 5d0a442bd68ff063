// Package contracts defines the canonical wire shapes Switchboard parses,
// validates, and hands between components: ingest.v1 (inbound), route.v1
// and notify.v1 (outbound to butlers).
//
// Grounded on join-service/internal/contracts/event/envelope.go's
// generic, versioned envelope shape, specialized here to the concrete
// ingest.v1 schema instead of a generic payload type parameter, since
// ingest.v1's field set is fixed by spec rather than per-producer.
package contracts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// SchemaIngestV1 is the only schema_version IngressEnvelope currently accepts.
const SchemaIngestV1 = "ingest.v1"

var validate = validator.New()

// Source identifies where an inbound event came from.
type Source struct {
	Channel          string `json:"channel" validate:"required"`
	Provider         string `json:"provider" validate:"required"`
	EndpointIdentity string `json:"endpoint_identity" validate:"required"`
}

// Event carries the source's own identity for the inbound occurrence.
// (source.channel, event.external_event_id) uniquely identifies an inbound
// event at the source, per spec.
type Event struct {
	ExternalEventID  string    `json:"external_event_id" validate:"required"`
	ExternalThreadID string    `json:"external_thread_id,omitempty"`
	ObservedAt       time.Time `json:"observed_at" validate:"required"`
}

// Sender identifies who sent the inbound event.
type Sender struct {
	Identity string   `json:"identity" validate:"required"`
	Display  string   `json:"display,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Attachment is a single payload attachment reference.
type Attachment struct {
	Kind string `json:"kind"`
	URI  string `json:"uri"`
}

// Payload carries the raw and (optionally) normalized message content.
type Payload struct {
	Raw            string       `json:"raw" validate:"required"`
	NormalizedText string       `json:"normalized_text,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// Control carries cross-cutting routing hints set by the connector.
type Control struct {
	PolicyTier string `json:"policy_tier,omitempty"`
}

// IngressEnvelope is the canonical ingest.v1 shape. It is immutable once
// parsed; Switchboard never mutates an envelope in place.
type IngressEnvelope struct {
	SchemaVersion string  `json:"schema_version" validate:"required"`
	Source        Source  `json:"source" validate:"required"`
	Event         Event   `json:"event" validate:"required"`
	Sender        Sender  `json:"sender" validate:"required"`
	Payload       Payload `json:"payload" validate:"required"`
	Control       Control `json:"control,omitempty"`
}

// ParseIngestV1 decodes and validates an ingest.v1 body. Unknown top-level
// fields are rejected (closed field set), channel/provider are
// lower-cased for stable comparisons downstream.
func ParseIngestV1(body []byte) (*IngressEnvelope, error) {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.DisallowUnknownFields()

	var env IngressEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	if env.SchemaVersion != SchemaIngestV1 {
		return nil, fmt.Errorf("unsupported schema_version %q", env.SchemaVersion)
	}

	env.Source.Channel = strings.ToLower(strings.TrimSpace(env.Source.Channel))
	env.Source.Provider = strings.ToLower(strings.TrimSpace(env.Source.Provider))

	if err := validate.Struct(env); err != nil {
		return nil, fmt.Errorf("envelope validation failed: %w", err)
	}

	return &env, nil
}
