package lifecycle

import (
	"github.com/juju/errors"
)

// ErrInvalidTransition is returned when an event is not allowed in the current state.
const ErrInvalidTransition = errors.ConstError("invalid lifecycle transition")

// State is the controller's lifecycle state.
type State int

const (
	StateUnloaded State = iota
	StateInstalled
	StateAwaitingUI
	StateRunning
	StateIneligible
	StateExpired
	StateShuttingDown
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "Unloaded"
	case StateInstalled:
		return "Installed"
	case StateAwaitingUI:
		return "AwaitingUI"
	case StateRunning:
		return "Running"
	case StateIneligible:
		return "Ineligible"
	case StateExpired:
		return "Expired"
	case StateShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the study ended early in this state.
// No subordinate service ever starts from a terminal state.
func (s State) Terminal() bool {
	return s == StateIneligible || s == StateExpired
}

// Event drives a state transition.
type Event int

const (
	EventActivate Event = iota
	EventDefer
	EventStartDirect
	EventUIReady
	EventIneligible
	EventExpired
	EventShutdown
	EventUnloaded
)

func (e Event) String() string {
	switch e {
	case EventActivate:
		return "activate"
	case EventDefer:
		return "defer"
	case EventStartDirect:
		return "start-direct"
	case EventUIReady:
		return "ui-ready"
	case EventIneligible:
		return "ineligible"
	case EventExpired:
		return "expired"
	case EventShutdown:
		return "shutdown"
	case EventUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// Next returns the state reached by firing ev in state from.
func Next(from State, ev Event) (State, error) {
	switch ev {
	case EventActivate:
		if from == StateUnloaded {
			return StateInstalled, nil
		}
	case EventDefer:
		if from == StateInstalled {
			return StateAwaitingUI, nil
		}
	case EventStartDirect:
		if from == StateInstalled {
			return StateRunning, nil
		}
	case EventUIReady:
		if from == StateAwaitingUI {
			return StateRunning, nil
		}
	case EventIneligible:
		if from == StateInstalled {
			return StateIneligible, nil
		}
	case EventExpired:
		if from == StateInstalled {
			return StateExpired, nil
		}
	case EventShutdown:
		if from != StateShuttingDown {
			return StateShuttingDown, nil
		}
	case EventUnloaded:
		if from == StateShuttingDown {
			return StateUnloaded, nil
		}
	}
	return from, errors.Annotatef(ErrInvalidTransition, "%s on %s", ev, from)
}
