package tabsync

import (
	"time"

	"github.com/dmitrymomot/tabsync/pkg/session"
)

// Startup is how a tab came to life.
type Startup int

const (
	// StartupNewTab is a fresh tab or a copied URL; protected access needs a login.
	StartupNewTab Startup = iota
	// StartupReload found a valid tab-local pointer.
	StartupReload
	// StartupRecovered adopted the registry entry of a just-unloaded tab.
	StartupRecovered
)

func (s Startup) String() string {
	switch s {
	case StartupReload:
		return "reload"
	case StartupRecovered:
		return "recovered"
	default:
		return "new_tab"
	}
}

// EventKind names a session transition observed by this tab.
type EventKind string

const (
	EventLogin        EventKind = "login"
	EventLogout       EventKind = "logout"
	EventExpired      EventKind = "expired"
	EventRoleSwitched EventKind = "role_switched"
	EventTokenChanged EventKind = "token_changed"
)

// Event is published on Coordinator.Events.
type Event struct {
	Kind EventKind
	// Record is the session after the transition; zero for logout and expiry.
	Record session.Record
	// Remote is true when a sibling tab triggered the transition.
	Remote bool
	// SourceTab is the tab that triggered it.
	SourceTab string
	At        time.Time
}

// EndsSession reports whether the tab no longer holds a session after e.
func (e Event) EndsSession() bool {
	return e.Kind == EventLogout || e.Kind == EventExpired
}
