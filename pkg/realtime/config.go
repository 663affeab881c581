package realtime

import "time"

// Config holds connection settings
type Config struct {
	URL               string        `env:"REALTIME_URL" envDefault:"ws://localhost:8090/ws"`
	HeartbeatInterval time.Duration `env:"REALTIME_HEARTBEAT_INTERVAL" envDefault:"30s"`
	BackoffBase       time.Duration `env:"REALTIME_BACKOFF_BASE" envDefault:"1s"`
	BackoffMax        time.Duration `env:"REALTIME_BACKOFF_MAX" envDefault:"30s"`
	// MaxAttempts is the number of consecutive failed connects before giving up
	MaxAttempts  int           `env:"REALTIME_MAX_ATTEMPTS" envDefault:"5"`
	WriteTimeout time.Duration `env:"REALTIME_WRITE_TIMEOUT" envDefault:"5s"`
	DialTimeout  time.Duration `env:"REALTIME_DIAL_TIMEOUT" envDefault:"10s"`
}

// DefaultConfig returns default connection configuration
func DefaultConfig() Config {
	return Config{
		URL:               "ws://localhost:8090/ws",
		HeartbeatInterval: 30 * time.Second,
		BackoffBase:       time.Second,
		BackoffMax:        30 * time.Second,
		MaxAttempts:       5,
		WriteTimeout:      5 * time.Second,
		DialTimeout:       10 * time.Second,
	}
}
