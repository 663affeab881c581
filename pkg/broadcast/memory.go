package broadcast

import (
	"context"
	"sync"
)

// MemoryBroadcaster fans messages out to in-process subscribers. A subscriber
// whose buffer is full when a message arrives is closed and removed, so
// Broadcast never blocks. Safe for concurrent use.
type MemoryBroadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[*subscriber[T]]struct{}
	buffer int
	closed bool
}

// NewMemoryBroadcaster returns a broadcaster whose subscribers buffer up to
// bufferSize messages (at least one).
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	return &MemoryBroadcaster[T]{
		subs:   make(map[*subscriber[T]]struct{}),
		buffer: max(bufferSize, 1),
	}
}

// Subscribe registers a subscriber until ctx ends. After Close it returns a
// subscriber whose channel is already closed.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := &subscriber[T]{ch: make(chan Message[T], b.buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		_ = sub.Close()
		return sub
	}
	b.subs[sub] = struct{}{}
	sub.detach = context.AfterFunc(ctx, func() { b.remove(sub) })
	return sub
}

// Broadcast delivers msg to every subscriber with room for it and drops the rest.
func (b *MemoryBroadcaster[T]) Broadcast(_ context.Context, msg Message[T]) error {
	var full []*subscriber[T]

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	for sub := range b.subs {
		if !sub.send(msg) {
			full = append(full, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range full {
		b.remove(sub)
	}
	return nil
}

// Len is the number of live subscribers.
func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber. Later broadcasts are ignored.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		sub.detach()
		_ = sub.Close()
	}
	clear(b.subs)
	return nil
}

func (b *MemoryBroadcaster[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	sub.detach()
	_ = sub.Close()
}
