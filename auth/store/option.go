package store

import (
	"log/slog"
	"time"
)

type Option func(*Store)

// WithSafetyMargin sets the margin kept before a token expiry
func WithSafetyMargin(margin time.Duration) Option {
	return func(s *Store) {
		s.margin = margin
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}
