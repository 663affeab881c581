package realtime

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/tabsync/pkg/backoff"
)

// Option configures a Manager
type Option func(*Manager)

// WithConfig sets connection settings
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.config = cfg
	}
}

// WithBackoff overrides the backoff derived from the config
func WithBackoff(b backoff.Strategy) Option {
	return func(m *Manager) {
		m.backoff = b
	}
}

// WithRegistry shares a subscription registry
func WithRegistry(r *Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithMetrics records connection metrics
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}
