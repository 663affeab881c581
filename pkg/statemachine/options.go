package statemachine

import (
	"fmt"
)

// Option configures a state machine during construction.
type Option[S, E comparable] func(*Machine[S, E])

// TransitionOption configures a single transition with guards and actions.
type TransitionOption[S, E comparable] func(*Transition[S, E])

// New creates a state machine in the initial state.
func New[S, E comparable](initial S, opts ...Option[S, E]) *Machine[S, E] {
	m := newMachine[S, E](initial)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MustNew is New that panics when the machine has no transitions at all,
// which always indicates a wiring mistake.
func MustNew[S, E comparable](initial S, opts ...Option[S, E]) *Machine[S, E] {
	m := New(initial, opts...)
	if len(m.transitions) == 0 {
		panic(fmt.Sprintf("statemachine: no transitions configured for initial state %v", initial))
	}
	return m
}

// WithTransition adds a single transition to the state machine.
func WithTransition[S, E comparable](from, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) {
		t := Transition[S, E]{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		m.AddTransition(t)
	}
}

// WithTransitions adds multiple transitions to the state machine at once.
func WithTransitions[S, E comparable](transitions ...Transition[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) {
		for _, t := range transitions {
			m.AddTransition(t)
		}
	}
}

// OnTransition registers a hook called after every successful transition.
func OnTransition[S, E comparable](hook Hook[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) {
		if hook != nil {
			m.hooks = append(m.hooks, hook)
		}
	}
}

// WithGuard adds a guard to a transition.
func WithGuard[S, E comparable](guard Guard[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		if guard != nil {
			t.Guards = append(t.Guards, guard)
		}
	}
}

// WithAction adds an action to a transition.
func WithAction[S, E comparable](action Action[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		if action != nil {
			t.Actions = append(t.Actions, action)
		}
	}
}
