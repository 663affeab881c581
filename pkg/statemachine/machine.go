package statemachine

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Machine is a thread-safe in-memory state machine.
type Machine[S, E comparable] struct {
	mu          sync.RWMutex
	initial     S
	current     S
	transitions map[S]map[E][]Transition[S, E]
	hooks       []Hook[S, E]
}

func newMachine[S, E comparable](initial S) *Machine[S, E] {
	return &Machine[S, E]{
		initial:     initial,
		current:     initial,
		transitions: make(map[S]map[E][]Transition[S, E]),
	}
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Is reports whether the current state is one of states.
func (m *Machine[S, E]) Is(states ...S) bool {
	return slices.Contains(states, m.Current())
}

// AddTransition registers a transition. Several transitions may share a
// from/event pair to support guard-based branching.
func (m *Machine[S, E]) AddTransition(t Transition[S, E]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transitions[t.From]; !ok {
		m.transitions[t.From] = make(map[E][]Transition[S, E])
	}
	m.transitions[t.From][t.Event] = append(m.transitions[t.From][t.Event], t)
}

// Fire triggers event from the current state.
func (m *Machine[S, E]) Fire(ctx context.Context, event E, data any) error {
	m.mu.Lock()

	from := m.current
	t, err := m.find(ctx, event, data)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	for _, action := range t.Actions {
		if err := action(ctx, from, t.To, event, data); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("action failed during transition from '%v' to '%v': %w", from, t.To, err)
		}
	}

	m.current = t.To
	hooks := m.hooks
	m.mu.Unlock()

	for _, h := range hooks {
		h(from, t.To, event)
	}
	return nil
}

// CanFire reports whether event would cause a transition from the current state.
func (m *Machine[S, E]) CanFire(ctx context.Context, event E, data any) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.find(ctx, event, data)
	return err == nil
}

// Reset returns the machine to its initial state without running hooks.
func (m *Machine[S, E]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
}

// find must be called with the lock held.
func (m *Machine[S, E]) find(ctx context.Context, event E, data any) (*Transition[S, E], error) {
	candidates := m.transitions[m.current][event]
	if len(candidates) == 0 {
		return nil, transitionError(m.current, event, ErrNoTransition)
	}

	// First transition with passing guards wins
	for i, t := range candidates {
		passed := true
		for _, guard := range t.Guards {
			if !guard(ctx, m.current, event, data) {
				passed = false
				break
			}
		}
		if passed {
			return &candidates[i], nil
		}
	}
	return nil, transitionError(m.current, event, ErrRejected)
}
