package call

import "fmt"

// State is the lifecycle stage of a call session
type State int

const (
	StateInitializing State = iota
	StateActive
	StateEnding
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// validTransitions lists the states reachable from each state. Ended has no exits.
var validTransitions = map[State][]State{
	StateInitializing: {StateActive, StateEnding},
	StateActive:       {StateEnding},
	StateEnding:       {StateEnded},
}

func transitionValid(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports a refused state change
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("call: invalid transition from %s to %s", e.From, e.To)
}
