package httpconnector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tzeusy/switchboard/internal/apperrors"
	"github.com/tzeusy/switchboard/internal/contracts"
)

const validBody = `{
	"schema_version": "ingest.v1",
	"source": {"channel": "telegram", "provider": "telegram_bot", "endpoint_identity": "bot-42"},
	"event": {"external_event_id": "evt-1", "observed_at": "2026-01-01T00:00:00Z"},
	"sender": {"identity": "user-1"},
	"payload": {"raw": "hello there"}
}`

func TestIngestHandler_AcceptsValidEnvelope(t *testing.T) {
	c := New(Config{}, zerolog.Nop(), nil)
	var received contracts.IngressEnvelope
	handler := c.ingestHandler(func(ctx context.Context, env contracts.IngressEnvelope) (contracts.IngestResponse, error) {
		received = env
		return contracts.IngestResponse{Status: "accepted", RequestID: "req-1"}, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/ingest/v1", strings.NewReader(validBody))
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "evt-1", received.Event.ExternalEventID)
	assert.Contains(t, rec.Body.String(), `"request_id":"req-1"`)
}

func TestIngestHandler_RejectsMalformedBody(t *testing.T) {
	c := New(Config{}, zerolog.Nop(), nil)
	called := false
	handler := c.ingestHandler(func(ctx context.Context, env contracts.IngressEnvelope) (contracts.IngestResponse, error) {
		called = true
		return contracts.IngestResponse{}, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/ingest/v1", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called, "sink must not be invoked for an envelope that fails to parse")
}

func TestIngestHandler_ReadsFullBodyRegardlessOfSize(t *testing.T) {
	// a single io.Reader.Read call is not guaranteed to fill the buffer;
	// the handler must loop (io.ReadAll) rather than assume one Read call
	// drains the body.
	c := New(Config{}, zerolog.Nop(), nil)
	padding := strings.Repeat(" ", 9000)
	body := strings.Replace(validBody, `"raw": "hello there"`, `"raw": "hello there`+padding+`"`, 1)

	var received contracts.IngressEnvelope
	handler := c.ingestHandler(func(ctx context.Context, env contracts.IngressEnvelope) (contracts.IngestResponse, error) {
		received = env
		return contracts.IngestResponse{Status: "accepted"}, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/ingest/v1", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasSuffix(received.Payload.Raw, padding), "payload was truncated")
}

func TestIngestHandler_MapsSinkErrorToStatus(t *testing.T) {
	c := New(Config{}, zerolog.Nop(), nil)
	handler := c.ingestHandler(func(ctx context.Context, env contracts.IngressEnvelope) (contracts.IngestResponse, error) {
		return contracts.IngestResponse{}, apperrors.NewDownstreamFailure("db unavailable", errors.New("conn refused"))
	})

	req := httptest.NewRequest(http.MethodPost, "/ingest/v1", strings.NewReader(validBody))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
