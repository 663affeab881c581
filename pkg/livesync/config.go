package livesync

import (
	"github.com/dmitrymomot/tabsync/pkg/realtime"
	"github.com/dmitrymomot/tabsync/pkg/session"
	"github.com/dmitrymomot/tabsync/pkg/tabsync"
)

// Config aggregates the settings of every component a Client builds.
// Nested structs keep their own env tags, so it loads with config.Load.
type Config struct {
	Session  session.Config
	Tabsync  tabsync.Config
	Realtime realtime.Config
}

// DefaultConfig returns default configuration for all components
func DefaultConfig() Config {
	return Config{
		Session:  session.DefaultConfig(),
		Tabsync:  tabsync.DefaultConfig(),
		Realtime: realtime.DefaultConfig(),
	}
}
