package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/viant/authpipe/auth/store"
	"github.com/viant/authpipe/metrics"
)

// Refresher renews the session; it returns once the token store holds the
// outcome of a renewal.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type RoundTripper struct {
	store       *store.Store
	refresher   Refresher
	transport   http.RoundTripper
	public      PublicPaths
	basePath    string
	renewalPath string
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New creates a RoundTripper reading tokens from tokens and renewing them
// through refresher.
func New(tokens *store.Store, refresher Refresher, options ...Option) (*RoundTripper, error) {
	if tokens == nil {
		return nil, errors.New("token store was nil")
	}
	if refresher == nil {
		return nil, errors.New("refresher was nil")
	}
	ret := &RoundTripper{
		store:       tokens,
		refresher:   refresher,
		transport:   http.DefaultTransport,
		public:      DefaultPublicPaths(),
		renewalPath: RefreshPath,
		logger:      slog.Default(),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret, nil
}

func (r *RoundTripper) Store() *store.Store {
	return r.store
}

// IsPublic reports whether path bypasses authentication.
func (r *RoundTripper) IsPublic(path string) bool {
	return r.public.Match(r.relative(path))
}

func (r *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if r.IsPublic(req.URL.Path) {
		public := req.Clone(req.Context())
		public.Header.Del("Authorization")
		return r.send(public)
	}

	ctx := req.Context()
	body, err := bodySource(req)
	if err != nil {
		return nil, err
	}
	// 1) Send with whatever token is persisted.
	first, err := clone(req, body)
	if err != nil {
		return nil, err
	}
	sent := r.authorize(ctx, first)
	resp, err := r.send(first)
	if err != nil {
		return nil, err
	}

	// 2) Anything but a 401 is final, and the renewal call is never refreshed.
	if resp.StatusCode != http.StatusUnauthorized || r.relative(req.URL.Path) == r.renewalPath {
		return resp, nil
	}
	// Keep the original 401 in case no retry is possible.
	original, err := buffer(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read unauthorized response: %w", err)
	}

	// 3) Renew only while the store still holds what we sent. A token that was
	// replaced or removed means a renewal for it has already settled.
	current, _ := r.store.Read(ctx)
	if (sent == "" && current == nil) || (current != nil && current.Token == sent) {
		if err = r.refresher.Refresh(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r.logger.Debug("refresh did not yield a token", slog.String("path", req.URL.Path), slog.String("error", err.Error()))
		}
		current, _ = r.store.Read(ctx)
	}
	if current == nil {
		return original, nil
	}

	// 4) Replay exactly once; a second 401 is returned as is.
	retry, err := clone(req, body)
	if err != nil {
		return nil, err
	}
	retry.Header.Set("Authorization", "Bearer "+current.Token)
	r.metrics.Retried()
	r.logger.Debug("replaying request after refresh", slog.String("method", req.Method), slog.String("path", req.URL.Path))
	return r.send(retry)
}

// authorize attaches the persisted token, returning the token sent.
func (r *RoundTripper) authorize(ctx context.Context, req *http.Request) string {
	token, err := r.store.Read(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("token store unreadable, sending unauthenticated", slog.String("error", err.Error()))
		}
		req.Header.Del("Authorization")
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	return token.Token
}

func (r *RoundTripper) send(req *http.Request) (*http.Response, error) {
	resp, err := r.transport.RoundTrip(req)
	switch {
	case err != nil:
		r.metrics.Request(metrics.RequestError)
	case resp.StatusCode == http.StatusUnauthorized:
		r.metrics.Request(metrics.RequestUnauthorized)
	default:
		r.metrics.Request(metrics.RequestOK)
	}
	return resp, err
}

func (r *RoundTripper) relative(path string) string {
	if r.basePath == "" {
		return path
	}
	return "/" + strings.TrimLeft(strings.TrimPrefix(path, r.basePath), "/")
}
