package httpserver

import (
	"fmt"
	"log/slog"
	"net"
	"time"
)

// Option configures a Server. Options given invalid values panic.
type Option func(*config)

func must(ok bool, option, reason string) {
	if !ok {
		panic(fmt.Sprintf("httpserver.%s: %s", option, reason))
	}
}

// WithConfig applies the non-zero fields of cfg.
func WithConfig(cfg Config) Option {
	return func(c *config) { c.merge(cfg) }
}

func WithAddr(addr string) Option {
	must(addr != "", "WithAddr", "empty address")
	return func(c *config) { c.Addr = addr }
}

// WithListener serves on ln instead of listening on the configured address.
func WithListener(ln net.Listener) Option {
	must(ln != nil, "WithListener", "nil listener")
	return func(c *config) { c.listener = ln }
}

func WithReadHeaderTimeout(d time.Duration) Option {
	must(d > 0, "WithReadHeaderTimeout", "non-positive duration")
	return WithConfig(Config{ReadHeaderTimeout: d})
}

func WithIdleTimeout(d time.Duration) Option {
	must(d > 0, "WithIdleTimeout", "non-positive duration")
	return WithConfig(Config{IdleTimeout: d})
}

// WithShutdownTimeout bounds graceful shutdown once the run context ends.
func WithShutdownTimeout(d time.Duration) Option {
	must(d > 0, "WithShutdownTimeout", "non-positive duration")
	return WithConfig(Config{ShutdownTimeout: d})
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithStartHook is called with the bound address once the server listens.
func WithStartHook(h func(net.Addr)) Option {
	must(h != nil, "WithStartHook", "nil hook")
	return func(c *config) { c.startHooks = append(c.startHooks, h) }
}

// WithStopHook runs after shutdown completes.
func WithStopHook(h func()) Option {
	must(h != nil, "WithStopHook", "nil hook")
	return func(c *config) { c.stopHooks = append(c.stopHooks, h) }
}
