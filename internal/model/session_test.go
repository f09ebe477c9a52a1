package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandoffStatusValid(t *testing.T) {
	for _, s := range []HandoffStatus{
		HandoffStatusBotOnly,
		HandoffStatusRequested,
		HandoffStatusActive,
		HandoffStatusOperatorActive,
		HandoffStatusResolved,
	} {
		assert.True(t, s.Valid(), "%s should be valid", s)
	}

	assert.False(t, HandoffStatus("paused").Valid())
	assert.False(t, HandoffStatus("").Valid())
}

func TestHandoffTransitions(t *testing.T) {
	tests := []struct {
		from    HandoffStatus
		to      HandoffStatus
		allowed bool
	}{
		{HandoffStatusBotOnly, HandoffStatusRequested, true},
		{HandoffStatusBotOnly, HandoffStatusResolved, true},
		{HandoffStatusBotOnly, HandoffStatusActive, false},
		{HandoffStatusBotOnly, HandoffStatusOperatorActive, false},

		{HandoffStatusRequested, HandoffStatusActive, true},
		{HandoffStatusRequested, HandoffStatusOperatorActive, true},
		{HandoffStatusRequested, HandoffStatusBotOnly, true},
		{HandoffStatusRequested, HandoffStatusResolved, true},

		{HandoffStatusActive, HandoffStatusOperatorActive, true},
		{HandoffStatusActive, HandoffStatusBotOnly, true},
		{HandoffStatusActive, HandoffStatusResolved, true},
		{HandoffStatusActive, HandoffStatusRequested, false},

		{HandoffStatusOperatorActive, HandoffStatusActive, true},
		{HandoffStatusOperatorActive, HandoffStatusBotOnly, true},
		{HandoffStatusOperatorActive, HandoffStatusResolved, true},
		{HandoffStatusOperatorActive, HandoffStatusRequested, false},

		{HandoffStatusResolved, HandoffStatusBotOnly, false},
		{HandoffStatusResolved, HandoffStatusRequested, false},
		{HandoffStatusResolved, HandoffStatusActive, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestHandoffSelfTransitionAlwaysAllowed(t *testing.T) {
	for s := range map[HandoffStatus]bool{
		HandoffStatusBotOnly:        true,
		HandoffStatusRequested:      true,
		HandoffStatusActive:         true,
		HandoffStatusOperatorActive: true,
		HandoffStatusResolved:       true,
	} {
		assert.True(t, s.CanTransitionTo(s), "%s self-loop", s)
	}
}

func TestHandoffEngaged(t *testing.T) {
	assert.False(t, HandoffStatusBotOnly.HandoffEngaged())
	assert.True(t, HandoffStatusRequested.HandoffEngaged())
	assert.True(t, HandoffStatusActive.HandoffEngaged())
	assert.True(t, HandoffStatusOperatorActive.HandoffEngaged())
	assert.False(t, HandoffStatusResolved.HandoffEngaged())
}

func TestTerminal(t *testing.T) {
	assert.True(t, HandoffStatusResolved.Terminal())
	assert.False(t, HandoffStatusBotOnly.Terminal())
	assert.False(t, HandoffStatusOperatorActive.Terminal())
}

func TestSenderInbound(t *testing.T) {
	assert.False(t, SenderUser.Inbound())
	assert.True(t, SenderBot.Inbound())
	assert.True(t, SenderOperator.Inbound())
	assert.True(t, SenderSystem.Inbound())
}
