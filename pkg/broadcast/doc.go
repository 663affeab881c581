// Package broadcast provides the two fan-out primitives the sync layer is
// built on.
//
// MemoryBroadcaster is a channel based one-to-many broadcaster. Every
// subscriber owns a buffered channel; a subscriber whose buffer is full is
// dropped instead of blocking the publisher. Storage change feeds and the
// coordinator's session events are delivered through it.
//
//	b := broadcast.NewMemoryBroadcaster[storage.Change](64)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx)
//	defer sub.Close()
//
//	for msg := range sub.Receive(ctx) {
//		handle(msg.Data)
//	}
//
// Bus is a callback registry keyed by topic. Handlers are invoked
// synchronously in registration order and a panicking handler is recovered so
// one consumer can never take down its siblings. The realtime subscription
// registry uses it to multiplex named events over one connection.
//
//	bus := broadcast.NewBus[string, Event]()
//	h := bus.Subscribe("booking:update", func(e Event) { ... })
//	bus.Publish("booking:update", evt)
//	bus.Unsubscribe(h)
package broadcast
