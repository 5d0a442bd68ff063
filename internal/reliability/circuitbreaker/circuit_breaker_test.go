package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpensAfterNFailuresAndRejectsUntilCooldown grounds S4 / invariant 6:
// N=5, W=60s, D=30ms. Five consecutive failures opens the circuit; the
// sixth call is rejected immediately with circuit_open.
func TestOpensAfterNFailuresAndRejectsUntilCooldown(t *testing.T) {
	b := New(Config{N: 5, W: 60 * time.Second, D: 30 * time.Millisecond, P: 2})

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
	}

	assert.Equal(t, StateOpen, b.State())
	err := b.Allow()
	assert.Error(t, err)
	assert.IsType(t, ErrOpen{}, err)

	time.Sleep(40 * time.Millisecond)

	require.NoError(t, b.Allow(), "should admit a half-open probe after cooldown")
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestHalfOpenRequiresPConsecutiveSuccessesToClose(t *testing.T) {
	b := New(Config{N: 1, W: time.Second, D: time.Millisecond, P: 2})

	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	time.Sleep(5 * time.Millisecond)

	require.NoError(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State(), "one success is not enough when P=2")

	require.NoError(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{N: 1, W: time.Second, D: time.Millisecond, P: 2})

	require.NoError(t, b.Allow())
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}
