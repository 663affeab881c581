package statemachine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTransition means no transition is defined for the event in the current state.
	ErrNoTransition = errors.New("statemachine.no_transition")
	// ErrRejected means transitions exist but every guard refused.
	ErrRejected = errors.New("statemachine.rejected")
)

// TransitionError reports a Fire that left the machine where it was.
type TransitionError struct {
	State string
	Event string
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: event %q in state %q", e.Err, e.Event, e.State)
}

func (e *TransitionError) Unwrap() error { return e.Err }

func transitionError(state, event any, err error) *TransitionError {
	return &TransitionError{State: fmt.Sprint(state), Event: fmt.Sprint(event), Err: err}
}
