// Package livesync ties a tab's session to its realtime connection.
//
// A Client owns one tabsync.Coordinator and one realtime.Manager. The
// manager authenticates with whatever token the tab's session currently
// holds, and session transitions drive the connection:
//
//	login               connect
//	logout, expiry      disconnect on purpose, no reconnect
//	role or token swap  reconnect with the new credentials
//
// Transitions started by sibling tabs arrive through the coordinator's
// signal channel and are handled the same way, so logging out in one tab
// closes the realtime channel in every tab of that user.
//
// Basic usage:
//
//	c := livesync.New(shared, local, realtime.WebSocketDialer{},
//		livesync.WithConfig(cfg),
//		livesync.WithLogger(log),
//	)
//	defer c.Close()
//
//	if _, err := c.Start(ctx); err != nil {
//		return err
//	}
//	realtime.On(c.Registry(), func(e realtime.BookingUpdate) { ... })
//	_ = c.SubscribeToRoom(ctx, realtime.RoomBookings)
//
//	snap := c.Snapshot() // IsConnected, ConnectionStatus, LastUpdate, Error
package livesync
