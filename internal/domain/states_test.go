package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemittanceTransitions(t *testing.T) {
	cases := []struct {
		current, next string
		ok            bool
	}{
		{StatePending, StateCompleted, true},
		{StatePending, StateCancelled, true},
		{StateCompleted, StateCancelled, false},
		{StateCompleted, StatePending, false},
		{StateCancelled, StateCompleted, false},
		{StateCancelled, StatePending, false},
		// Legacy "confirmed" remittances read as completed.
		{StateConfirmed, StateCancelled, false},
		{StatePending, StateConfirmed, true}, // normalizes to completed
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, RemittanceCanTransition(tc.current, tc.next), "%s -> %s", tc.current, tc.next)
	}
}

func TestPayoutTransitions(t *testing.T) {
	cases := []struct {
		current, next string
		ok            bool
	}{
		{StatePending, StateConfirmed, true},
		{StatePending, StateCancelled, true},
		{StatePending, StateCompleted, false},
		{StateConfirmed, StateCancelled, false},
		{StateCancelled, StateConfirmed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, PayoutCanTransition(tc.current, tc.next), "%s -> %s", tc.current, tc.next)
	}
}

func TestNormalizeRemittanceState(t *testing.T) {
	assert.Equal(t, StateCompleted, NormalizeRemittanceState("confirmed"))
	assert.Equal(t, StateCompleted, NormalizeRemittanceState(" COMPLETED "))
	assert.Equal(t, StatePending, NormalizeRemittanceState("pending"))
}

func TestTerminalStates(t *testing.T) {
	assert.False(t, TerminalRemittanceState(StatePending))
	assert.True(t, TerminalRemittanceState(StateCompleted))
	assert.True(t, TerminalRemittanceState(StateConfirmed))
	assert.True(t, TerminalRemittanceState(StateCancelled))
	assert.False(t, TerminalPayoutState(StatePending))
	assert.True(t, TerminalPayoutState(StateConfirmed))
}
