package authpipe

import (
	"log/slog"
	"net/http"

	"github.com/viant/authpipe/auth/store"
	"github.com/viant/authpipe/metrics"
)

type Option func(*Client)

// WithLogger sets logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTransport sets the transport underneath the cookie jar and bearer layers
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) {
		if transport != nil {
			c.base = transport
		}
	}
}

// WithBackend sets the token store backend, overriding Options.TokenURL
func WithBackend(backend store.Backend) Option {
	return func(c *Client) {
		c.backend = backend
	}
}
