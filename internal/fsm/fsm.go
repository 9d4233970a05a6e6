package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle     State = "idle"
	StateActive   State = "active"
	StateFlushing State = "flushing"
)

const (
	EventPress       Event = "press"
	EventRelease     Event = "release"
	EventBlur        Event = "blur"
	EventFlushed     Event = "flushed"
	EventAbandon     Event = "abandon"
	EventStartFailed Event = "start_failed"
)

// Transition returns the next push-to-talk state. Release and blur both
// begin a flush; only one of them can ever be accepted per session.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventPress:
			return StateActive, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateActive:
		switch event {
		case EventRelease, EventBlur:
			return StateFlushing, nil
		case EventAbandon, EventStartFailed:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFlushing:
		switch event {
		case EventFlushed:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
