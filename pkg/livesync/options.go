package livesync

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/tabsync/pkg/backoff"
	"github.com/dmitrymomot/tabsync/pkg/realtime"
)

// Option configures a Client
type Option func(*Client)

// WithConfig sets the configuration of every component
func WithConfig(cfg Config) Option {
	return func(c *Client) {
		c.config = cfg
	}
}

// WithTabID overrides the generated tab id
func WithTabID(id string) Option {
	return func(c *Client) {
		c.tabID = id
	}
}

// WithClock replaces time.Now in the coordinator and the manager
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBackoff overrides the reconnect backoff
func WithBackoff(b backoff.Strategy) Option {
	return func(c *Client) {
		c.backoff = b
	}
}

// WithMetrics records connection metrics
func WithMetrics(m *realtime.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
