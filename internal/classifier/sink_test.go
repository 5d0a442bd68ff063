package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tzeusy/switchboard/internal/contracts"
	"github.com/tzeusy/switchboard/internal/router"
)

type stubSink struct {
	decision router.Decision
	err      error
	delay    time.Duration
}

func (s *stubSink) Classify(ctx context.Context, envelope contracts.IngressEnvelope) (router.Decision, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return router.Decision{}, ctx.Err()
		}
	}
	return s.decision, s.err
}

func TestTimeoutFallback_ReturnsInnerDecisionOnSuccess(t *testing.T) {
	want := router.Decision{Targets: []router.Target{{Butler: "crm-butler"}}}
	f := NewTimeoutFallback(&stubSink{decision: want}, time.Second, "general-butler", zerolog.Nop())

	got, err := f.Classify(context.Background(), contracts.IngressEnvelope{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTimeoutFallback_FallsBackOnInnerError(t *testing.T) {
	f := NewTimeoutFallback(&stubSink{err: errors.New("boom")}, time.Second, "general-butler", zerolog.Nop())

	got, err := f.Classify(context.Background(), contracts.IngressEnvelope{})
	require.NoError(t, err)
	require.Len(t, got.Targets, 1)
	assert.Equal(t, "general-butler", got.Targets[0].Butler)
	assert.Equal(t, router.ParseSourceFallback, got.ParseSource)
}

func TestTimeoutFallback_FallsBackOnTimeout(t *testing.T) {
	f := NewTimeoutFallback(&stubSink{delay: 50 * time.Millisecond}, 5*time.Millisecond, "general-butler", zerolog.Nop())

	got, err := f.Classify(context.Background(), contracts.IngressEnvelope{})
	require.NoError(t, err)
	require.Len(t, got.Targets, 1)
	assert.Equal(t, "general-butler", got.Targets[0].Butler)
	assert.Equal(t, router.ParseSourceFallback, got.ParseSource)
}
