package broadcast

import (
	"context"
	"sync"
)

// Message is one broadcast payload.
type Message[T any] struct {
	Data T
}

// Subscriber is a single consumer's view of a Broadcaster.
type Subscriber[T any] interface {
	// Receive yields messages until the subscriber is closed or dropped,
	// then the channel is closed.
	Receive(ctx context.Context) <-chan Message[T]
	Close() error
}

// Broadcaster delivers each message to all of its subscribers without
// waiting on any of them.
type Broadcaster[T any] interface {
	// Subscribe returns a subscriber that is removed once ctx ends.
	Subscribe(ctx context.Context) Subscriber[T]
	Broadcast(ctx context.Context, msg Message[T]) error
	// Close closes every subscriber.
	Close() error
}

var _ Broadcaster[struct{}] = (*MemoryBroadcaster[struct{}])(nil)

type subscriber[T any] struct {
	mu     sync.Mutex
	ch     chan Message[T]
	closed bool
	// detach stops watching the subscription context.
	detach func() bool
}

func (s *subscriber[T]) Receive(context.Context) <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// send reports false when s is closed or its buffer is full.
func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
