package session

import "time"

// Config holds session timing configuration
type Config struct {
	// Retention evicts registry entries whose timestamp is older than this
	Retention time.Duration `env:"SESSION_RETENTION" envDefault:"24h"`

	// ActivityWindow bounds which entries ActiveSessionsCount considers active
	ActivityWindow time.Duration `env:"SESSION_ACTIVITY_WINDOW" envDefault:"30m"`

	// RefreshWindow is the reload detection window used by Recover
	RefreshWindow time.Duration `env:"SESSION_REFRESH_WINDOW" envDefault:"5s"`
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		Retention:      24 * time.Hour,
		ActivityWindow: 30 * time.Minute,
		RefreshWindow:  5 * time.Second,
	}
}
