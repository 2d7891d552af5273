package domain

import "strings"

var remittanceTransitions = map[string]map[string]struct{}{
	StatePending: {
		StateCompleted: {},
		StateCancelled: {},
	},
	StateCompleted: {},
	StateCancelled: {},
}

var payoutTransitions = map[string]map[string]struct{}{
	StatePending: {
		StateConfirmed: {},
		StateCancelled: {},
	},
	StateConfirmed: {},
	StateCancelled: {},
}

// NormalizeRemittanceState folds the legacy "confirmed" remittance state into
// "completed". Old rows may still carry it; it is never written back out.
func NormalizeRemittanceState(state string) string {
	state = strings.ToLower(strings.TrimSpace(state))
	if state == StateConfirmed {
		return StateCompleted
	}
	return state
}

// RemittanceCanTransition reports whether a remittance may move from current
// to next. Legacy states are normalized before the lookup.
func RemittanceCanTransition(current, next string) bool {
	return canTransition(remittanceTransitions, NormalizeRemittanceState(current), NormalizeRemittanceState(next))
}

// PayoutCanTransition reports whether a payout may move from current to next.
func PayoutCanTransition(current, next string) bool {
	current = strings.ToLower(strings.TrimSpace(current))
	next = strings.ToLower(strings.TrimSpace(next))
	return canTransition(payoutTransitions, current, next)
}

// TerminalRemittanceState reports whether the state allows no further edits.
func TerminalRemittanceState(state string) bool {
	return NormalizeRemittanceState(state) != StatePending
}

// TerminalPayoutState reports whether the state allows no further edits.
func TerminalPayoutState(state string) bool {
	return strings.ToLower(strings.TrimSpace(state)) != StatePending
}

func canTransition(table map[string]map[string]struct{}, current, next string) bool {
	nextStates, ok := table[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}
