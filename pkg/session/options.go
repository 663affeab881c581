package session

import (
	"log/slog"
	"time"
)

// Option configures a Store
type Option func(*Store)

// WithConfig sets the timing configuration
func WithConfig(cfg Config) Option {
	return func(s *Store) {
		s.config = cfg
	}
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}
