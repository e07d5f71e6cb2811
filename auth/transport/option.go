package transport

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/viant/authpipe/metrics"
)

type Option func(*RoundTripper)

// WithTransport sets the transport requests are sent through
func WithTransport(transport http.RoundTripper) Option {
	return func(t *RoundTripper) {
		if transport != nil {
			t.transport = transport
		}
	}
}

// WithPublicPaths replaces the unauthenticated allow-list
func WithPublicPaths(paths PublicPaths) Option {
	return func(t *RoundTripper) {
		t.public = paths
	}
}

// WithRenewalPath sets the renewal endpoint path, which is never refreshed
func WithRenewalPath(path string) Option {
	return func(t *RoundTripper) {
		t.renewalPath = path
	}
}

// WithBaseURL sets the API base; its path is stripped before matching paths
func WithBaseURL(base string) Option {
	return func(t *RoundTripper) {
		if u, err := url.Parse(base); err == nil {
			t.basePath = strings.TrimRight(u.Path, "/")
		}
	}
}

// WithLogger sets logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *RoundTripper) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics sets metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *RoundTripper) {
		t.metrics = m
	}
}

// WithCookieJar wraps the current transport so requests carry jar cookies
func WithCookieJar(jar http.CookieJar) Option {
	return func(t *RoundTripper) {
		t.transport = WrapWithCookieJar(t.transport, jar)
	}
}
