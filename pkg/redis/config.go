package redis

import "time"

// Config describes how to reach the redis instance shared by all tabs.
type Config struct {
	// ConnectionURL is redis://[:password@]host:port/db
	ConnectionURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	// RetryAttempts bounds the pings Connect sends before giving up
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}
