// Package reconcile holds the cash-drawer reconciliation rules for opening
// and closing a shift.
package reconcile

import (
	"errors"
	"fmt"
)

type State string

const (
	StateNoShift State = "no_shift"
	StateOpen    State = "open"
	StateClosing State = "closing"
	StateClosed  State = "closed"
)

type Event string

const (
	EventOpen        Event = "open"
	EventBeginClose  Event = "begin_close"
	EventCancelClose Event = "cancel_close"
	EventSubmitClose Event = "submit_close"
)

var ErrInvalidTransition = errors.New("invalid shift transition")

var transitions = map[State]map[Event]State{
	StateNoShift: {EventOpen: StateOpen},
	StateOpen:    {EventBeginClose: StateClosing},
	StateClosing: {EventCancelClose: StateOpen, EventSubmitClose: StateClosed},
	// a closed shift is immutable; the next one starts from NoShift
	StateClosed: {EventOpen: StateOpen},
}

// Next returns the state reached from s on e.
func Next(s State, e Event) (State, error) {
	if to, ok := transitions[s][e]; ok {
		return to, nil
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
}
