package authpipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/viant/authpipe/auth/refresh"
	"github.com/viant/authpipe/auth/state"
	"github.com/viant/authpipe/auth/store"
	"github.com/viant/authpipe/auth/transport"
	"github.com/viant/authpipe/metrics"
	"golang.org/x/oauth2"
)

// Client executes API calls with the caller's session. Non-public calls carry
// the persisted bearer token; an expired token is renewed once, shared by
// every concurrent call, and each rejected call is replayed exactly once.
type Client struct {
	options     *Options
	baseURL     string
	tokens      *store.Store
	state       *state.State
	jar         *transport.FileJar
	coordinator *refresh.Coordinator
	transport   *transport.RoundTripper
	httpClient  *http.Client

	backend store.Backend
	base    http.RoundTripper
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Client and rehydrates the session persisted by a previous
// process.
func New(ctx context.Context, options *Options, opts ...Option) (*Client, error) {
	if options == nil {
		return nil, errors.New("options were nil")
	}
	options.Init()
	if err := options.Validate(); err != nil {
		return nil, err
	}
	ret := &Client{
		options: options,
		baseURL: strings.TrimRight(options.BaseURL, "/"),
		base:    http.DefaultTransport,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(ret)
	}

	backend := ret.backend
	if backend == nil {
		if options.TokenURL != "" {
			backend = store.NewFileBackend(options.TokenURL)
		} else {
			backend = store.NewMemoryBackend()
		}
	}
	ret.tokens = store.New(backend, store.WithSafetyMargin(options.SafetyMargin), store.WithLogger(ret.logger))
	ret.state = state.New(ret.tokens, state.WithLogger(ret.logger))
	if err := ret.state.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	jarURL := options.CookieJarURL
	if jarURL == "" {
		jarURL = "mem://localhost/authpipe/" + uuid.New().String() + "/cookies.json"
	}
	jar, err := transport.NewFileJar(ctx, jarURL, transport.WithJarLogger(ret.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	ret.jar = jar
	base := transport.WrapWithCookieJar(ret.base, jar)

	renewer := transport.NewRenewer(ret.baseURL, &http.Client{Transport: base, Timeout: options.Timeout})
	ret.coordinator = refresh.New(renewer, ret.state, refresh.WithLogger(ret.logger), refresh.WithMetrics(ret.metrics))
	ret.transport, err = transport.New(ret.tokens, ret.coordinator,
		transport.WithTransport(base),
		transport.WithPublicPaths(options.PublicPaths),
		transport.WithBaseURL(ret.baseURL),
		transport.WithLogger(ret.logger),
		transport.WithMetrics(ret.metrics),
	)
	if err != nil {
		return nil, err
	}
	ret.httpClient = &http.Client{Transport: ret.transport, Timeout: options.Timeout}
	return ret, nil
}

// Execute sends request to path, relative to the base URL. Transport failures
// are returned wrapped; a non-2xx answer is an *HTTPError and an undecodable
// 2xx body a *ParseError.
func (c *Client) Execute(ctx context.Context, path string, request *Request) (*Response, error) {
	if request == nil {
		request = &Request{}
	}
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	body, contentType, err := request.encode()
	if err != nil {
		return nil, err
	}
	httpRequest, err := http.NewRequestWithContext(ctx, method, c.url(path, request.Query), body)
	if err != nil {
		return nil, err
	}
	for key, values := range request.Header {
		for _, value := range values {
			httpRequest.Header.Add(key, value)
		}
	}
	switch {
	case contentType != "":
		httpRequest.Header.Set("Content-Type", contentType)
	case httpRequest.Header.Get("Content-Type") == "":
		httpRequest.Header.Set("Content-Type", "application/json")
	}
	if httpRequest.Header.Get("Accept") == "" {
		httpRequest.Header.Set("Accept", "application/json")
	}

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer httpResponse.Body.Close()
	raw, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	var decoded any
	var decodeErr error
	if len(raw) > 0 && hasBody(httpResponse.StatusCode) {
		decodeErr = json.Unmarshal(raw, &decoded)
	}
	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		if decodeErr != nil {
			decoded = nil
		}
		return nil, &HTTPError{
			Method: method,
			Path:   path,
			Status: httpResponse.StatusCode,
			Header: httpResponse.Header,
			Body:   decoded,
			Raw:    raw,
		}
	}
	if decodeErr != nil {
		return nil, &ParseError{Status: httpResponse.StatusCode, Header: httpResponse.Header, Body: string(raw), Err: decodeErr}
	}
	return &Response{Status: httpResponse.StatusCode, Header: httpResponse.Header, Body: decoded, Raw: raw}, nil
}

func hasBody(status int) bool {
	switch status {
	case http.StatusNoContent, http.StatusResetContent, http.StatusNotModified:
		return false
	}
	return true
}

func (c *Client) url(path string, query url.Values) string {
	ret := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		ret += "?" + query.Encode()
	}
	return ret
}

// Credentials identify the caller on login and signup.
type Credentials struct {
	Username  string     `json:"username"`
	Password  string     `json:"password"`
	Role      store.Role `json:"role,omitempty"`
	CollegeID string     `json:"collegeId,omitempty"`
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, username, password string) (state.Session, error) {
	return c.authenticate(ctx, transport.LoginPath, &Credentials{Username: username, Password: password})
}

// Signup registers an account and starts its session.
func (c *Client) Signup(ctx context.Context, credentials *Credentials) (state.Session, error) {
	if credentials == nil {
		return state.Session{}, errors.New("credentials were nil")
	}
	return c.authenticate(ctx, transport.SignupPath, credentials)
}

func (c *Client) authenticate(ctx context.Context, path string, credentials *Credentials) (state.Session, error) {
	resp, err := c.Execute(ctx, path, &Request{Method: http.MethodPost, Body: credentials})
	if err != nil {
		return state.Session{}, err
	}
	grant, err := transport.DecodeGrant(resp.Raw)
	if err != nil {
		return state.Session{}, err
	}
	role := grant.Role
	if role == "" {
		role = credentials.Role
	}
	if role == "" {
		role = store.RoleGuest
	}
	if err = c.state.AcceptNewSession(ctx, grant.AccessToken, grant.ExpiresIn, role); err != nil {
		return state.Session{}, err
	}
	identity := store.Identity{Username: credentials.Username, CollegeID: credentials.CollegeID}
	if err = c.tokens.SetIdentity(ctx, identity); err != nil {
		c.logger.Warn("failed to cache identity", slog.String("error", err.Error()))
	}
	return c.state.Session(), nil
}

// CheckUsername reports whether username is still available.
func (c *Client) CheckUsername(ctx context.Context, username string) (bool, error) {
	resp, err := c.Execute(ctx, transport.CheckUsernamePath, &Request{Query: url.Values{"username": {username}}})
	if err != nil {
		return false, err
	}
	var result struct {
		Available bool `json:"available"`
	}
	if err = resp.DecodeData(&result); err != nil {
		return false, &ParseError{Status: resp.Status, Header: resp.Header, Body: string(resp.Raw), Err: err}
	}
	return result.Available, nil
}

// Logout ends the session and drops the session cookie.
func (c *Client) Logout(ctx context.Context) error {
	return errors.Join(c.state.EndSession(ctx), c.jar.Clear(ctx))
}

// Session returns the current authentication snapshot.
func (c *Client) Session() state.Session {
	return c.state.Session()
}

// Identity returns the cached username and college id.
func (c *Client) Identity(ctx context.Context) (*store.Identity, error) {
	return c.tokens.Identity(ctx)
}

func (c *Client) State() *state.State {
	return c.state
}

func (c *Client) Store() *store.Store {
	return c.tokens
}

// HTTPClient returns an http.Client running the authenticated pipeline, for
// callers that build requests themselves.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// TokenSource exposes the session to oauth2-aware clients.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return c.state.TokenSource(ctx)
}

// Refresh forces a renewal, sharing any renewal already in flight.
func (c *Client) Refresh(ctx context.Context) error {
	return c.coordinator.Refresh(ctx)
}

func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}
