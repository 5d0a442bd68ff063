package inbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLifecycleState_Terminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateDeadLettered.Terminal())
	assert.False(t, StateAccepted.Terminal())
	assert.False(t, StateTriaged.Terminal())
	assert.False(t, StateClassifying.Terminal())
	assert.False(t, StateDispatching.Terminal())
	assert.False(t, StateFailed.Terminal())
}

func TestTransitionLifecycle_RefusesOutOfTerminalState(t *testing.T) {
	// from.Terminal() is checked before any database access, so this is
	// safe to exercise against a Store with no pool (invariant 2: no
	// transition is ever permitted out of completed/dead_lettered).
	s := &Store{}

	err := s.TransitionLifecycle(context.Background(), "req-1", StateCompleted, StateFailed, nil)
	assert.Error(t, err)

	err = s.TransitionLifecycle(context.Background(), "req-1", StateDeadLettered, StateFailed, nil)
	assert.Error(t, err)
}
