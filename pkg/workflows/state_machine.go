package workflows

import "fmt"

// Issuance states, in the order a request moves through them.
const (
	StateUnauthenticated = "UNAUTHENTICATED"
	StateAuthenticated   = "AUTHENTICATED"
	StateValidated       = "VALIDATED"
	StateResolved        = "RESOLVED"
	StateRendered        = "RENDERED"
)

// StateMachine enforces issuance state transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine creates a new state machine with allowed transitions
func NewStateMachine() *StateMachine {
	return &StateMachine{
		allowedTransitions: map[string][]string{
			StateUnauthenticated: {StateAuthenticated},
			StateAuthenticated:   {StateValidated},
			StateValidated:       {StateResolved},
			StateResolved:        {StateRendered},
			StateRendered:        {},
		},
	}
}

// CanTransition checks if a state transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next states for a given state
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}

// Run tracks the progress of a single request.
type Run struct {
	sm    *StateMachine
	state string
}

// Start begins a run in the unauthenticated state.
func (sm *StateMachine) Start() *Run {
	return &Run{sm: sm, state: StateUnauthenticated}
}

// State returns the current state.
func (r *Run) State() string {
	return r.state
}

// Advance moves the run to the given state.
func (r *Run) Advance(to string) error {
	if !r.sm.CanTransition(r.state, to) {
		return fmt.Errorf("invalid issuance transition %s -> %s", r.state, to)
	}
	r.state = to
	return nil
}
