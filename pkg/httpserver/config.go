package httpserver

import (
	"log/slog"
	"net"
	"time"
)

// Config is the env-loadable server configuration. Zero fields keep the defaults.
type Config struct {
	Addr              string        `env:"HTTP_ADDR" envDefault:":8090"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// merge copies the non-zero fields of o into c.
func (c *Config) merge(o Config) {
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.ReadHeaderTimeout > 0 {
		c.ReadHeaderTimeout = o.ReadHeaderTimeout
	}
	if o.IdleTimeout > 0 {
		c.IdleTimeout = o.IdleTimeout
	}
	if o.ShutdownTimeout > 0 {
		c.ShutdownTimeout = o.ShutdownTimeout
	}
}

type config struct {
	Config

	listener   net.Listener
	logger     *slog.Logger
	startHooks []func(net.Addr)
	stopHooks  []func()
}

func defaultConfig() *config {
	return &config{Config: Config{
		Addr:              ":8090",
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}}
}

// NewFromConfig is New with cfg applied before opts.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	return New(append([]Option{WithConfig(cfg)}, opts...)...)
}
