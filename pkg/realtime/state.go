package realtime

import (
	"context"
	"time"

	"github.com/dmitrymomot/tabsync/pkg/statemachine"
)

// State is the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// States lists every connection state.
var States = []State{StateDisconnected, StateConnecting, StateConnected, StateError}

type trigger string

const (
	triggerDial  trigger = "dial"
	triggerOpen  trigger = "open"
	triggerFail  trigger = "fail"
	triggerDrop  trigger = "drop"
	triggerClose trigger = "close"
)

func newConnectionMachine(hook statemachine.Hook[State, trigger]) *statemachine.Machine[State, trigger] {
	return statemachine.MustNew(StateDisconnected,
		statemachine.WithTransitions(
			statemachine.Transition[State, trigger]{From: StateDisconnected, To: StateConnecting, Event: triggerDial},
			statemachine.Transition[State, trigger]{From: StateError, To: StateConnecting, Event: triggerDial},
			statemachine.Transition[State, trigger]{From: StateConnecting, To: StateConnected, Event: triggerOpen},
			statemachine.Transition[State, trigger]{From: StateConnecting, To: StateError, Event: triggerFail},
			statemachine.Transition[State, trigger]{From: StateConnected, To: StateDisconnected, Event: triggerDrop},
			statemachine.Transition[State, trigger]{From: StateConnecting, To: StateDisconnected, Event: triggerClose},
			statemachine.Transition[State, trigger]{From: StateConnected, To: StateDisconnected, Event: triggerClose},
			statemachine.Transition[State, trigger]{From: StateError, To: StateDisconnected, Event: triggerClose},
		),
		statemachine.OnTransition(hook),
	)
}

// Status is a read-only snapshot of the connection.
type Status struct {
	State     State
	Connected bool
	// LastUpdate is when the last pong or domain event arrived.
	LastUpdate time.Time
	// Err is an actionable error: an AuthError or ErrRetryBudgetExhausted.
	// Recoverable failures only show up in Failures.
	Err error
	// Failures counts consecutive failed connect attempts.
	Failures int
}

// TokenSource supplies the token presented at handshake.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}
