package realtime

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/dmitrymomot/tabsync/pkg/broadcast"
	"github.com/dmitrymomot/tabsync/pkg/logger"
)

// Handler receives events.
type Handler func(Event)

// Subscription identifies one registered handler.
type Subscription = broadcast.Handle[EventName]

// Emitter sends an event on a connection.
type Emitter interface {
	Emit(ctx context.Context, name EventName, data any) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, name EventName, data any) error

func (f EmitterFunc) Emit(ctx context.Context, name EventName, data any) error {
	return f(ctx, name, data)
}

// Registry is the client-owned source of truth for subscriptions. Handlers
// are kept here, not on the connection, so they survive reconnects. Rooms
// are reference counted: each consumer subscribes and unsubscribes on its
// own, the wire sees at most one join per room per connection.
type Registry struct {
	bus    *broadcast.Bus[EventName, Event]
	logger *slog.Logger

	mu         sync.Mutex
	rooms      map[Room]int
	joined     map[Room]bool
	emitter    Emitter
	generation uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := &Registry{
		bus:    broadcast.NewBus[EventName, Event](),
		logger: log,
		rooms:  make(map[Room]int),
		joined: make(map[Room]bool),
	}
	r.bus.OnPanic(func(e broadcast.HandlerPanicError) {
		r.logger.Error("event handler panicked", logger.Event(e.Topic), slog.Any("panic", e.Value))
	})
	return r
}

// Subscribe registers h for name.
func (r *Registry) Subscribe(name EventName, h Handler) Subscription {
	if h == nil {
		return Subscription{}
	}
	return r.bus.Subscribe(name, h)
}

// Unsubscribe removes one handler.
func (r *Registry) Unsubscribe(sub Subscription) bool {
	return r.bus.Unsubscribe(sub)
}

// UnsubscribeAll removes every handler of name.
func (r *Registry) UnsubscribeAll(name EventName) int {
	return r.bus.UnsubscribeAll(name)
}

// Handlers returns the number of handlers registered for name.
func (r *Registry) Handlers(name EventName) int {
	return r.bus.Count(name)
}

// On registers a handler for the event type T. T must be a value type such
// as BookingUpdate.
func On[T Event](r *Registry, fn func(T)) Subscription {
	if fn == nil {
		return Subscription{}
	}
	var zero T
	return r.Subscribe(zero.EventName(), func(e Event) {
		if v, ok := e.(T); ok {
			fn(v)
		}
	})
}

// Dispatch delivers e to its handlers and returns how many ran cleanly.
func (r *Registry) Dispatch(e Event) int {
	return r.bus.Publish(e.EventName(), e)
}

// SubscribeToRoom adds one membership to room, joining it on the current
// connection if this is the first.
func (r *Registry) SubscribeToRoom(ctx context.Context, room Room) error {
	if !room.Valid() {
		return ErrUnknownRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms[room]++
	return r.join(ctx, room)
}

// UnsubscribeFromRoom drops one membership, leaving the room on the wire
// once nobody is interested any more.
func (r *Registry) UnsubscribeFromRoom(ctx context.Context, room Room) error {
	if !room.Valid() {
		return ErrUnknownRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[room] == 0 {
		return nil
	}
	r.rooms[room]--
	if r.rooms[room] > 0 {
		return nil
	}
	delete(r.rooms, room)

	if !r.joined[room] || r.emitter == nil {
		return nil
	}
	delete(r.joined, room)
	return r.emitter.Emit(ctx, room.LeaveEvent(), nil)
}

// Rooms returns the rooms with at least one membership.
func (r *Registry) Rooms() []Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedRooms()
}

// Joined returns the rooms joined on the current connection.
func (r *Registry) Joined() []Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Room, 0, len(r.joined))
	for _, room := range Rooms {
		if r.joined[room] {
			out = append(out, room)
		}
	}
	return out
}

// Generation counts Bind calls, one per successful connect.
func (r *Registry) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Bind replays the registry onto a new connection: memberships of the
// previous connection are forgotten and every desired room is joined once.
// It returns the rooms joined and the errors of joins that failed.
func (r *Registry) Bind(ctx context.Context, e Emitter) ([]Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.emitter = e
	r.generation++
	clear(r.joined)

	var errs []error
	joined := make([]Room, 0, len(r.rooms))
	for _, room := range r.sortedRooms() {
		if err := r.join(ctx, room); err != nil {
			errs = append(errs, err)
			continue
		}
		joined = append(joined, room)
	}
	return joined, errors.Join(errs...)
}

// Unbind detaches the registry from its connection.
func (r *Registry) Unbind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitter = nil
	clear(r.joined)
}

// join must be called with the lock held.
func (r *Registry) join(ctx context.Context, room Room) error {
	if r.emitter == nil || r.joined[room] {
		return nil
	}
	if err := r.emitter.Emit(ctx, room.JoinEvent(), nil); err != nil {
		return err
	}
	r.joined[room] = true
	return nil
}

func (r *Registry) sortedRooms() []Room {
	out := make([]Room, 0, len(r.rooms))
	for room := range r.rooms {
		out = append(out, room)
	}
	slices.Sort(out)
	return out
}
