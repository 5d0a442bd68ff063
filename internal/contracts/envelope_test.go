package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIngestJSON() string {
	return `{
		"schema_version": "ingest.v1",
		"source": {"channel": "Telegram", "provider": "TELEGRAM_BOT", "endpoint_identity": "bot-42"},
		"event": {"external_event_id": "evt-1", "observed_at": "2026-01-01T00:00:00Z"},
		"sender": {"identity": "user-1"},
		"payload": {"raw": "hello there"}
	}`
}

func TestParseIngestV1_Valid(t *testing.T) {
	env, err := ParseIngestV1([]byte(validIngestJSON()))
	require.NoError(t, err)
	assert.Equal(t, "telegram", env.Source.Channel)
	assert.Equal(t, "telegram_bot", env.Source.Provider)
	assert.Equal(t, "hello there", env.Payload.Raw)
}

func TestParseIngestV1_RejectsUnknownFields(t *testing.T) {
	body := `{
		"schema_version": "ingest.v1",
		"source": {"channel": "telegram", "provider": "telegram_bot", "endpoint_identity": "bot-42"},
		"event": {"external_event_id": "evt-1", "observed_at": "2026-01-01T00:00:00Z"},
		"sender": {"identity": "user-1"},
		"payload": {"raw": "hello there"},
		"unexpected_field": "should be rejected"
	}`
	_, err := ParseIngestV1([]byte(body))
	assert.Error(t, err)
}

func TestParseIngestV1_RejectsUnsupportedSchemaVersion(t *testing.T) {
	body := `{
		"schema_version": "ingest.v2",
		"source": {"channel": "telegram", "provider": "telegram_bot", "endpoint_identity": "bot-42"},
		"event": {"external_event_id": "evt-1", "observed_at": "2026-01-01T00:00:00Z"},
		"sender": {"identity": "user-1"},
		"payload": {"raw": "hello there"}
	}`
	_, err := ParseIngestV1([]byte(body))
	assert.Error(t, err)
}

func TestParseIngestV1_RejectsMissingRequiredField(t *testing.T) {
	body := `{
		"schema_version": "ingest.v1",
		"source": {"channel": "telegram", "provider": "telegram_bot", "endpoint_identity": "bot-42"},
		"event": {"external_event_id": "evt-1", "observed_at": "2026-01-01T00:00:00Z"},
		"sender": {"identity": "user-1"},
		"payload": {}
	}`
	_, err := ParseIngestV1([]byte(body))
	assert.Error(t, err)
}

func TestParseIngestV1_RejectsMalformedJSON(t *testing.T) {
	_, err := ParseIngestV1([]byte(`{"schema_version": "ingest.v1",`))
	assert.Error(t, err)
}
