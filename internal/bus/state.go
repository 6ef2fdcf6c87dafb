package bus

import "fmt"

// State is the state of a pipeline graph.
type State int

// states.
const (
	StateBuilding State = iota
	StateLinked
	StatePlaying
	StateErrorStopped
	StateStopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateLinked:
		return "linked"
	case StatePlaying:
		return "playing"
	case StateErrorStopped:
		return "error-stopped"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Terminal returns whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateErrorStopped || s == StateStopped
}

// ErrInvalidTransition is returned when a transition is not allowed.
type ErrInvalidTransition struct {
	From State
	To   State
}

// Error implements error.
func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

func canTransition(from State, to State) bool {
	switch to {
	case StateLinked:
		return from == StateBuilding

	case StatePlaying:
		return from == StateLinked

	case StateErrorStopped:
		return from == StateLinked || from == StatePlaying

	case StateStopped:
		return !from.Terminal()
	}
	return false
}
