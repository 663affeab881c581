// Package session keeps one logical authentication session consistent across
// tabs that share nothing but a persistent key-value store.
//
// Each tab owns exactly one Record in the shared registry (hash key
// "tabSessions", one field per tab id) and keeps a pointer to it in its
// tab-local store (key "currentSession"). A Store is bound to one tab:
//
//	st := session.New(shared, local, tabID, session.WithLogger(log))
//	rec, err := st.CreateSession(ctx, token, session.User{ID: "42"}, session.RoleOwner)
//	rec, err = st.GetSession(ctx) // pointer first, then reload recovery
//
// Token expiry comes from the token's own "exp" claim; a record whose token
// has expired is never returned. Registry reads evict entries older than the
// retention window, entries with expired or undecodable tokens and corrupt
// JSON. Corrupt records are treated as "no session" and never surface as
// errors.
//
// A page reload that lost its tab-local pointer is recovered by scanning the
// registry for an entry stamped by MarkUnloading within the refresh window and
// claiming it atomically. This is a best-effort heuristic: two tabs opened in
// rapid succession right after an unload can still race for the same entry,
// only one of them wins.
package session
