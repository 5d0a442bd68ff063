package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func seedInstructions(instructions []Instruction) *InstructionCache {
	c := &InstructionCache{}
	c.current.Store(&instructions)
	return c
}

func TestInstructionCache_RenderEmptyWhenNoInstructions(t *testing.T) {
	c := seedInstructions(nil)
	assert.Equal(t, "", c.Render())
}

func TestInstructionCache_RenderJoinsStoredOrderWithNewlines(t *testing.T) {
	// ordering itself is Refresh's responsibility (priority ASC, created_at
	// ASC); Render just joins whatever snapshot is current.
	c := seedInstructions([]Instruction{
		{ID: "a", Instruction: "first", Priority: 1},
		{ID: "b", Instruction: "second", Priority: 2},
	})
	assert.Equal(t, "first\nsecond", c.Render())
}
