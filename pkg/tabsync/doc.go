// Package tabsync coordinates one tab with its siblings.
//
// A Coordinator gives the tab a fresh identity, classifies its startup as a
// new tab, a reload or a recovered reload, guards protected access for new
// tabs, and propagates logout and expiry to every other tab of the same user
// through Signals, a broadcast primitive built on shared store writes.
//
//	c := tabsync.New(shared, local, tabsync.WithLogger(log))
//	startup, err := c.Start(ctx)
//	defer c.Close()
//
//	if _, err := c.Authorize(ctx, true); errors.Is(err, tabsync.ErrReauthRequired) {
//		// copied URL or fresh tab: ask the user to log in
//	}
//
// All periodic work (activity heartbeat, token revalidation, registry
// cleanup and the signal debounce) runs on one scheduler owned by the
// Coordinator, so Close leaves no timers behind.
//
// Reload recovery is best effort. When the tab-local pointer is gone, a
// registry entry marked as unloading within the refresh window is claimed
// instead. Two tabs opened from a copied URL within that window can still be
// taken for a reload.
package tabsync
