package devserver

import "time"

// Config configures the development realtime backend.
type Config struct {
	SigningKey   string        `env:"DEVSERVER_SIGNING_KEY" envDefault:"tabsync-dev-secret"`
	TokenTTL     time.Duration `env:"DEVSERVER_TOKEN_TTL" envDefault:"1h"`
	WriteTimeout time.Duration `env:"DEVSERVER_WRITE_TIMEOUT" envDefault:"5s"`
	// OriginPatterns authorizes cross-origin browser handshakes.
	OriginPatterns []string `env:"DEVSERVER_ORIGIN_PATTERNS" envSeparator:"," envDefault:"localhost:*,127.0.0.1:*"`
	ReadLimit      int64    `env:"DEVSERVER_READ_LIMIT" envDefault:"65536"`
}

// DefaultConfig returns the development defaults.
func DefaultConfig() Config {
	return Config{
		SigningKey:     "tabsync-dev-secret",
		TokenTTL:       time.Hour,
		WriteTimeout:   5 * time.Second,
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		ReadLimit:      64 << 10,
	}
}
