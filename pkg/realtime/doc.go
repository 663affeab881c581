// Package realtime keeps one authenticated realtime channel alive and
// multiplexes typed events and rooms over it.
//
// Manager owns the connection lifecycle as a state machine
// (disconnected, connecting, connected, error). Transport failures are
// retried with capped exponential backoff up to a fixed number of
// consecutive failures, after which the manager stays in the error state
// until RetryConnection is called. A missing or rejected token is an
// AuthError: fatal to the attempt and never retried. Disconnect is
// intentional and suppresses reconnects; every other closure reconnects.
//
// While connected a ping is emitted on every heartbeat interval; pong
// replies and domain events advance Status().LastUpdate. Missing pongs never
// close the connection, the transport's own disconnect is authoritative.
//
// Registry holds subscriptions independently of any connection. Handlers
// survive reconnects by construction and room memberships are replayed on
// every successful connect, with at most one join per room per connection:
//
//	m := realtime.NewManager(dialer, tokens, realtime.WithConfig(cfg))
//	realtime.On(m.Registry(), func(e realtime.BookingUpdate) { ... })
//	_ = m.SubscribeToRoom(ctx, realtime.RoomBookings)
//	_ = m.Connect(ctx)
//
// Frames are JSON envelopes {"event": name, "data": payload} carried by
// WebSocketDialer over github.com/coder/websocket.
package realtime
