package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/viant/authpipe"
	"github.com/viant/authpipe/auth/store"
	"github.com/viant/authpipe/metrics"
	"golang.org/x/sync/errgroup"
)

// Report summarizes a probe run.
type Report struct {
	Requests       int            `json:"requests"`
	Statuses       map[string]int `json:"statuses"`
	Refreshes      int            `json:"refreshes"`
	FailedRefresh  int            `json:"failedRefreshes"`
	Retries        int            `json:"retries"`
	Authenticated  bool           `json:"authenticated"`
	Role           store.Role     `json:"role,omitempty"`
	Unauthorized   int            `json:"unauthorized"`
	TransportError int            `json:"transportErrors"`
}

// Probe fires concurrent calls at one protected path and reports how the
// session coped.
type Probe struct {
	options *Options
	logger  *slog.Logger
}

// Run logs in when needed, then sends Concurrency simultaneous calls. Every
// call is reported; the returned error matches authpipe.ErrUnauthorized when
// any call ended unauthorized.
func (p *Probe) Run(ctx context.Context) (*Report, error) {
	clientOptions, err := p.options.clientOptions(ctx)
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return nil, err
	}
	client, err := authpipe.New(ctx, clientOptions, authpipe.WithLogger(p.logger), authpipe.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	if !client.Session().Authenticated && p.options.Username != "" {
		if _, err = client.Login(ctx, p.options.Username, p.options.Password); err != nil {
			return nil, fmt.Errorf("login failed: %w", err)
		}
		p.logger.Info("logged in", slog.String("username", p.options.Username))
	}

	concurrency := p.options.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	report := &Report{Requests: concurrency, Statuses: map[string]int{}}
	var mux sync.Mutex
	record := func(err error, status int) {
		mux.Lock()
		defer mux.Unlock()
		var httpErr *authpipe.HTTPError
		switch {
		case err == nil:
			report.Statuses[strconv.Itoa(status)]++
		case errors.As(err, &httpErr):
			report.Statuses[strconv.Itoa(httpErr.Status)]++
			if authpipe.IsUnauthorized(err) {
				report.Unauthorized++
			}
		case authpipe.IsParseError(err):
			report.Statuses[strconv.Itoa(status)]++
		default:
			report.TransportError++
		}
	}

	group, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		group.Go(func() error {
			resp, err := client.Execute(gCtx, p.options.Path, nil)
			status := 0
			if resp != nil {
				status = resp.Status
			}
			var parseErr *authpipe.ParseError
			if errors.As(err, &parseErr) {
				status = parseErr.Status
			}
			if err != nil {
				p.logger.Debug("call failed", slog.String("path", p.options.Path), slog.String("error", err.Error()))
			}
			record(err, status)
			return nil
		})
	}
	_ = group.Wait()

	report.Refreshes = int(testutil.ToFloat64(m.Refreshes(metrics.OutcomeSuccess)))
	report.FailedRefresh = int(testutil.ToFloat64(m.Refreshes(metrics.OutcomeFailure)))
	report.Retries = int(testutil.ToFloat64(m.Retries()))
	session := client.Session()
	report.Authenticated = session.Authenticated
	report.Role = session.Role
	if report.Unauthorized > 0 {
		return report, fmt.Errorf("%d of %d calls unauthorized: %w", report.Unauthorized, report.Requests, authpipe.ErrUnauthorized)
	}
	return report, nil
}

// New creates a Probe.
func New(options *Options, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{options: options, logger: logger}
}
