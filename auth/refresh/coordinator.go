// Package refresh collapses concurrent token renewals into a single call.
//
// A Coordinator is Idle or Refreshing. The first caller that needs a fresh
// token flips it to Refreshing and performs the renewal; callers arriving
// while a renewal is in flight queue behind it and receive its outcome. The
// flip back to Idle and the release of every queued waiter happen in the same
// critical section, so a new renewal can never start while waiters of the
// previous one are still queued.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/authpipe/auth/store"
	"github.com/viant/authpipe/metrics"
)

// ErrRefreshFailed is delivered to every caller of a failed renewal.
var ErrRefreshFailed = errors.New("token refresh failed")

// Grant is a token issued by the renewal endpoint.
type Grant struct {
	AccessToken string
	ExpiresIn   time.Duration
	// Role is empty when the server does not restate it.
	Role store.Role
}

// Renewer performs the renewal call against the server.
type Renewer interface {
	Renew(ctx context.Context) (*Grant, error)
}

// RenewerFunc adapts a function to Renewer.
type RenewerFunc func(ctx context.Context) (*Grant, error)

func (f RenewerFunc) Renew(ctx context.Context) (*Grant, error) {
	return f(ctx)
}

// Sessions is the writer side of the authentication state.
type Sessions interface {
	AcceptNewSession(ctx context.Context, token string, lifetime time.Duration, role store.Role) error
	EndSession(ctx context.Context) error
	LastRole(ctx context.Context) store.Role
}

// Coordinator serializes renewals.
type Coordinator struct {
	mux      sync.Mutex
	inFlight bool
	waiters  []chan error

	renewer  Renewer
	sessions Sessions
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Refresh renews the session or waits for the renewal already in flight.
// It returns nil once a fresh token has been stored, or an error wrapping
// ErrRefreshFailed after the session has been ended. A waiter whose ctx is
// done returns ctx.Err() without affecting the renewal.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mux.Lock()
	if c.inFlight {
		waiter := make(chan error, 1)
		c.waiters = append(c.waiters, waiter)
		c.mux.Unlock()
		c.metrics.WaiterQueued()
		select {
		case err := <-waiter:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.inFlight = true
	c.mux.Unlock()

	err := c.renew(context.WithoutCancel(ctx))
	c.settle(err)
	return err
}

func (c *Coordinator) renew(ctx context.Context) error {
	refreshID := uuid.New().String()
	logger := c.logger.With(slog.String("refresh_id", refreshID))
	logger.Debug("token refresh started")
	c.metrics.RefreshStarted()
	started := time.Now()

	err := c.exchange(ctx)
	if err != nil {
		c.metrics.RefreshFinished(metrics.OutcomeFailure)
		logger.Warn("token refresh failed, ending session", slog.String("error", err.Error()), slog.Duration("elapsed", time.Since(started)))
		if endErr := c.sessions.EndSession(ctx); endErr != nil {
			logger.Error("failed to end session after refresh failure", slog.String("error", endErr.Error()))
		}
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	c.metrics.RefreshFinished(metrics.OutcomeSuccess)
	logger.Info("token refreshed", slog.Duration("elapsed", time.Since(started)))
	return nil
}

func (c *Coordinator) exchange(ctx context.Context) error {
	grant, err := c.renewer.Renew(ctx)
	if err != nil {
		return err
	}
	if grant == nil || grant.AccessToken == "" {
		return errors.New("renewal returned no access token")
	}
	role := grant.Role
	if role == "" {
		role = c.sessions.LastRole(ctx)
	}
	return c.sessions.AcceptNewSession(ctx, grant.AccessToken, grant.ExpiresIn, role)
}

// settle flips back to Idle and releases every waiter in enqueue order.
func (c *Coordinator) settle(err error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	for _, waiter := range c.waiters {
		waiter <- err
	}
	c.waiters = nil
	c.inFlight = false
}

// InFlight reports whether a renewal is running.
func (c *Coordinator) InFlight() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.inFlight
}

// Waiters returns the number of callers queued behind the running renewal.
func (c *Coordinator) Waiters() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.waiters)
}

// New creates a Coordinator.
func New(renewer Renewer, sessions Sessions, options ...Option) *Coordinator {
	ret := &Coordinator{
		renewer:  renewer,
		sessions: sessions,
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

type Option func(*Coordinator)

// WithLogger sets logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}
