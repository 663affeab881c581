package broadcast

import (
	"fmt"
	"sync"
)

// Handle identifies one registered Bus handler.
type Handle[K comparable] struct {
	topic K
	id    uint64
}

// Topic returns the topic the handler was registered for.
func (h Handle[K]) Topic() K {
	return h.topic
}

// Valid reports whether h refers to a registration (the zero Handle does not).
func (h Handle[K]) Valid() bool {
	return h.id != 0
}

type busEntry[T any] struct {
	id uint64
	fn func(T)
}

// Bus is a synchronous publish/subscribe registry keyed by topic.
// All methods are safe for concurrent use; handlers run on the publisher's goroutine.
type Bus[K comparable, T any] struct {
	mu       sync.RWMutex
	handlers map[K][]busEntry[T]
	nextID   uint64
	onPanic  func(HandlerPanicError)
}

// NewBus creates an empty bus.
func NewBus[K comparable, T any]() *Bus[K, T] {
	return &Bus[K, T]{
		handlers: make(map[K][]busEntry[T]),
	}
}

// OnPanic sets the callback invoked when a handler panics.
func (b *Bus[K, T]) OnPanic(fn func(HandlerPanicError)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPanic = fn
}

// Subscribe registers fn for topic. A nil fn is ignored and yields the zero Handle.
func (b *Bus[K, T]) Subscribe(topic K, fn func(T)) Handle[K] {
	if fn == nil {
		return Handle[K]{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[topic] = append(b.handlers[topic], busEntry[T]{id: b.nextID, fn: fn})
	return Handle[K]{topic: topic, id: b.nextID}
}

// Unsubscribe removes one handler. It reports whether the handler was registered.
func (b *Bus[K, T]) Unsubscribe(h Handle[K]) bool {
	if !h.Valid() {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.handlers[h.topic]
	for i, e := range entries {
		if e.id != h.id {
			continue
		}
		entries = append(entries[:i:i], entries[i+1:]...)
		if len(entries) == 0 {
			delete(b.handlers, h.topic)
		} else {
			b.handlers[h.topic] = entries
		}
		return true
	}
	return false
}

// UnsubscribeAll removes every handler of topic and returns how many were removed.
func (b *Bus[K, T]) UnsubscribeAll(topic K) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.handlers[topic])
	delete(b.handlers, topic)
	return n
}

// Count returns the number of handlers registered for topic.
func (b *Bus[K, T]) Count(topic K) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}

// Topics returns every topic with at least one handler.
func (b *Bus[K, T]) Topics() []K {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]K, 0, len(b.handlers))
	for k := range b.handlers {
		topics = append(topics, k)
	}
	return topics
}

// Publish calls every handler of topic with v and returns how many ran
// without panicking. The handler list is snapshotted first, so handlers may
// subscribe or unsubscribe while being called.
func (b *Bus[K, T]) Publish(topic K, v T) int {
	b.mu.RLock()
	entries := make([]busEntry[T], len(b.handlers[topic]))
	copy(entries, b.handlers[topic])
	onPanic := b.onPanic
	b.mu.RUnlock()

	delivered := 0
	for _, e := range entries {
		if b.call(topic, e.fn, v, onPanic) {
			delivered++
		}
	}
	return delivered
}

func (b *Bus[K, T]) call(topic K, fn func(T), v T, onPanic func(HandlerPanicError)) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if onPanic != nil {
				onPanic(HandlerPanicError{Topic: fmt.Sprint(topic), Value: r})
			}
		}
	}()
	fn(v)
	return true
}
