package tabsync

import "time"

// Config holds the coordinator's timer intervals
type Config struct {
	// HeartbeatInterval refreshes this tab's registry timestamp
	HeartbeatInterval time.Duration `env:"TABSYNC_HEARTBEAT_INTERVAL" envDefault:"30s"`

	// RevalidateInterval re-checks token expiry and broadcasts it
	RevalidateInterval time.Duration `env:"TABSYNC_REVALIDATE_INTERVAL" envDefault:"5m"`

	// CleanupInterval evicts stale registry entries (0 to disable)
	CleanupInterval time.Duration `env:"TABSYNC_CLEANUP_INTERVAL" envDefault:"5m"`

	// SignalDebounce is how long a signal key lives before its writer clears it
	SignalDebounce time.Duration `env:"TABSYNC_SIGNAL_DEBOUNCE" envDefault:"100ms"`
}

// DefaultConfig returns default coordinator configuration
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:  30 * time.Second,
		RevalidateInterval: 5 * time.Minute,
		CleanupInterval:    5 * time.Minute,
		SignalDebounce:     100 * time.Millisecond,
	}
}
