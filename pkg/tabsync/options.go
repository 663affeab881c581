package tabsync

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/tabsync/pkg/session"
)

// Option configures a Coordinator
type Option func(*Coordinator)

// WithConfig sets timer intervals
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) {
		c.config = cfg
	}
}

// WithSessionConfig sets the session store configuration
func WithSessionConfig(cfg session.Config) Option {
	return func(c *Coordinator) {
		c.sessionConfig = cfg
	}
}

// WithTabID overrides the generated tab id
func WithTabID(id string) Option {
	return func(c *Coordinator) {
		if id != "" {
			c.tabID = id
		}
	}
}

// WithClock replaces time.Now for the coordinator and its session store
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}
