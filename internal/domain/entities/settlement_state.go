package entities

import "fmt"

// SettlementState is the canonical, provider-agnostic settlement status.
// Every rail's raw status vocabulary is normalized into one of these.
type SettlementState string

const (
	SettlementStatePending    SettlementState = "pending"    // Awaiting external confirmation
	SettlementStateProcessing SettlementState = "processing" // Provider is validating/executing
	SettlementStateSettled    SettlementState = "settled"    // Terminal: paid
	SettlementStateFailed     SettlementState = "failed"     // Terminal: cancelled, expired or failed
)

// ValidSettlementStates contains all valid canonical states
var ValidSettlementStates = map[SettlementState]bool{
	SettlementStatePending:    true,
	SettlementStateProcessing: true,
	SettlementStateSettled:    true,
	SettlementStateFailed:     true,
}

// ValidSettlementTransitions defines allowed state transitions.
// Terminal states have no outgoing edges; a Pending record may jump
// straight to a terminal state (providers do not always report the
// intermediate processing step).
var ValidSettlementTransitions = map[SettlementState][]SettlementState{
	SettlementStatePending:    {SettlementStateProcessing, SettlementStateSettled, SettlementStateFailed},
	SettlementStateProcessing: {SettlementStateSettled, SettlementStateFailed},
	SettlementStateSettled:    {},
	SettlementStateFailed:     {},
}

// IsValid checks if the state is a valid canonical state
func (s SettlementState) IsValid() bool {
	return ValidSettlementStates[s]
}

// IsTerminal returns true once no further transitions are applied
func (s SettlementState) IsTerminal() bool {
	return s == SettlementStateSettled || s == SettlementStateFailed
}

// CanTransitionTo checks if transition to newState is allowed
func (s SettlementState) CanTransitionTo(newState SettlementState) bool {
	allowed, exists := ValidSettlementTransitions[s]
	if !exists {
		return false
	}
	for _, state := range allowed {
		if state == newState {
			return true
		}
	}
	return false
}

// ValidateTransition validates and returns an error if the transition is invalid
func (s SettlementState) ValidateTransition(newState SettlementState) error {
	if !newState.IsValid() {
		return fmt.Errorf("invalid settlement state: %s", newState)
	}
	if !s.CanTransitionTo(newState) {
		return fmt.Errorf("invalid settlement transition from %s to %s", s, newState)
	}
	return nil
}
