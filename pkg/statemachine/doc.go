// Package statemachine provides a small, generic, concurrency-safe finite
// state machine.
//
// States and events are any comparable types, usually string-backed enums:
//
//	type Status string
//	type Trigger string
//
//	sm := statemachine.MustNew[Status, Trigger]("disconnected",
//		statemachine.WithTransition[Status, Trigger]("disconnected", "connecting", "dial"),
//		statemachine.WithTransition[Status, Trigger]("connecting", "connected", "open"),
//		statemachine.OnTransition(func(from, to Status, ev Trigger) {
//			log.Printf("%s -> %s on %s", from, to, ev)
//		}),
//	)
//	err := sm.Fire(ctx, "dial", nil)
//
// Transitions are stored as map[from][event][]Transition. When several
// transitions share a from/event pair the first one whose guards all pass
// wins. Actions run in order before the state changes; an action error aborts
// the transition. Hooks registered with OnTransition run after the state has
// changed and outside the machine lock, so they may call back into it.
//
// A Fire that cannot move returns a *TransitionError wrapping ErrNoTransition
// or ErrRejected; match them with errors.Is.
package statemachine
