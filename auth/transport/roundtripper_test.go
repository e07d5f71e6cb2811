package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/authpipe/auth/mock"
	"github.com/viant/authpipe/auth/refresh"
	"github.com/viant/authpipe/auth/state"
	"github.com/viant/authpipe/auth/store"
)

type fixture struct {
	server      *mock.Server
	tokens      *store.Store
	state       *state.State
	coordinator *refresh.Coordinator
	transport   *RoundTripper
	client      *http.Client
}

func newFixture(t *testing.T, options ...Option) *fixture {
	t.Helper()
	server, err := mock.NewServer()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	server.AddUser("alice", "secret", "owner")

	jar, err := NewFileJar(context.Background(), filepath.Join(t.TempDir(), "cookies.json"))
	require.NoError(t, err)
	base := WrapWithCookieJar(http.DefaultTransport, jar)

	tokens := store.NewMemoryStore()
	aState := state.New(tokens)
	coordinator := refresh.New(NewRenewer(server.URL, &http.Client{Transport: base}), aState)
	rt, err := New(tokens, coordinator, append([]Option{WithTransport(base)}, options...)...)
	require.NoError(t, err)
	return &fixture{
		server:      server,
		tokens:      tokens,
		state:       aState,
		coordinator: coordinator,
		transport:   rt,
		client:      &http.Client{Transport: rt},
	}
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	body := bytes.NewBufferString(`{"username":"alice","password":"secret"}`)
	resp, err := f.client.Post(f.server.URL+LoginPath, "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	grant, err := DecodeGrant(data)
	require.NoError(t, err)
	require.NoError(t, f.state.AcceptNewSession(context.Background(), grant.AccessToken, grant.ExpiresIn, grant.Role))
	return grant.AccessToken
}

func (f *fixture) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := f.client.Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

// gateRefresh holds every refresh request until the returned func is called,
// then answers with status and body.
func gateRefresh(f *fixture, status int, body string) func() {
	release := make(chan struct{})
	f.server.RefreshHandler = func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
	var once sync.Once
	return func() { once.Do(func() { close(release) }) }
}

func TestRoundTripper_AttachesBearer(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	status, body := f.get(t, "/api/items")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"user":"alice"`)
	observed := f.server.ObservedPath("/api/items")
	require.Len(t, observed, 1)
	assert.Equal(t, "Bearer "+token, observed[0].Authorization)
	assert.Equal(t, 0, f.server.RefreshCalls())
}

func TestRoundTripper_PublicPathCarriesNoBearer(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+CheckUsernamePath+"?username=bob", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer caller-supplied")
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, item := range f.server.Observed() {
		if f.transport.IsPublic(item.Path) {
			assert.Empty(t, item.Authorization, item.Path)
		}
	}
	assert.Equal(t, "Bearer caller-supplied", req.Header.Get("Authorization"))
}

func TestRoundTripper_NoTokenSendsUnauthenticated(t *testing.T) {
	f := newFixture(t)

	status, body := f.get(t, "/api/items")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body, "unauthorized")
	observed := f.server.ObservedPath("/api/items")
	require.Len(t, observed, 1)
	assert.Empty(t, observed[0].Authorization)
	assert.Equal(t, 1, f.server.RefreshCalls())
}

func TestRoundTripper_ConcurrentUnauthorizedRefreshOnce(t *testing.T) {
	f := newFixture(t)
	stale := f.login(t)
	f.server.Expire()
	f.server.RefreshDelay = 50 * time.Millisecond

	const n = 8
	var wg sync.WaitGroup
	var ok atomic.Int32
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			resp, err := f.client.Get(f.server.URL + "/api/items")
			if !assert.NoError(t, err) {
				return
			}
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, n, ok.Load())
	assert.Equal(t, 1, f.server.RefreshCalls())
	token, err := f.tokens.Read(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, stale, token.Token)
	assert.Equal(t, store.RoleOwner, token.Role)
}

func TestRoundTripper_RefreshFailureReturnsOriginal401(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.server.Expire()
	release := gateRefresh(f, http.StatusInternalServerError, `{"message":"boom"}`)
	defer release()

	const n = 3
	type result struct {
		status int
		body   string
	}
	results := make(chan result, n)
	for i := 0; i < n; i++ {
		go func() {
			resp, err := f.client.Get(f.server.URL + "/api/items")
			if !assert.NoError(t, err) {
				results <- result{}
				return
			}
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)
			results <- result{status: resp.StatusCode, body: string(data)}
		}()
	}
	require.Eventually(t, func() bool {
		return f.coordinator.InFlight() && f.coordinator.Waiters() == n-1
	}, 5*time.Second, time.Millisecond)
	release()

	for i := 0; i < n; i++ {
		r := <-results
		assert.Equal(t, http.StatusUnauthorized, r.status)
		assert.Contains(t, r.body, "invalid token")
	}
	assert.Equal(t, 1, f.server.RefreshCalls())
	assert.False(t, f.tokens.IsValid(context.Background()))
	_, err := f.tokens.Read(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, f.state.IsAuthenticated())
}

func TestRoundTripper_SecondUnauthorizedNotRetried(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.state.AcceptNewSession(context.Background(), "first", time.Hour, store.RoleCustomer))
	var calls atomic.Int32
	f.server.ResourceHandler = func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}
	release := gateRefresh(f, http.StatusOK, `{"data":{"accessToken":"second","expiresIn":3600}}`)
	release()

	status, _ := f.get(t, "/api/items")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 1, f.server.RefreshCalls())
	observed := f.server.ObservedPath("/api/items")
	require.Len(t, observed, 2)
	assert.Equal(t, "Bearer first", observed[0].Authorization)
	assert.Equal(t, "Bearer second", observed[1].Authorization)
	assert.Equal(t, store.RoleCustomer, f.state.Role())
}

func TestRoundTripper_ReplaysBody(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.state.AcceptNewSession(context.Background(), "first", time.Hour, store.RoleCustomer))
	var bodies []string
	var mux sync.Mutex
	f.server.ResourceHandler = func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mux.Lock()
		bodies = append(bodies, string(data))
		mux.Unlock()
		if r.Header.Get("Authorization") != "Bearer second" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}
	release := gateRefresh(f, http.StatusOK, `{"data":{"accessToken":"second","expiresIn":3600}}`)
	release()

	payload := map[string]string{"name": "chair"}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := f.client.Post(f.server.URL+"/api/items", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	echoed, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, string(data), string(echoed))
	assert.Equal(t, []string{string(data), string(data)}, bodies)
}

func TestRoundTripper_LeavesRequestUntouched(t *testing.T) {
	var testCases = []struct {
		description string
		getBody     bool
	}{
		{description: "body with GetBody", getBody: true},
		{description: "body without GetBody", getBody: false},
	}
	for _, testCase := range testCases {
		f := newFixture(t)
		require.NoError(t, f.state.AcceptNewSession(context.Background(), "first", time.Hour, store.RoleCustomer))
		var bodies []string
		var mux sync.Mutex
		f.server.ResourceHandler = func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			mux.Lock()
			bodies = append(bodies, string(data))
			mux.Unlock()
			if r.Header.Get("Authorization") != "Bearer second" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
		release := gateRefresh(f, http.StatusOK, `{"data":{"accessToken":"second","expiresIn":3600}}`)
		release()

		req, err := http.NewRequest(http.MethodPut, f.server.URL+"/api/items/1", bytes.NewReader([]byte(`{"name":"desk"}`)))
		require.NoError(t, err)
		if !testCase.getBody {
			req.GetBody = nil
		}
		body := req.Body
		resp, err := f.transport.RoundTrip(req)
		require.NoError(t, err, testCase.description)
		_ = resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode, testCase.description)
		assert.Equal(t, []string{`{"name":"desk"}`, `{"name":"desk"}`}, bodies, testCase.description)
		assert.True(t, req.Body == body, testCase.description)
		assert.Empty(t, req.Header.Get("Authorization"), testCase.description)
		if testCase.getBody {
			unread, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, `{"name":"desk"}`, string(unread), testCase.description)
		}
	}
}

func TestRoundTripper_LateUnauthorizedAfterFailedRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.server.Expire()
	f.server.RevokeSessions()
	late := make(chan struct{})
	f.server.ResourceHandler = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/slow" {
			<-late
		}
		w.WriteHeader(http.StatusUnauthorized)
	}

	slow := make(chan int, 1)
	go func() {
		resp, err := f.client.Get(f.server.URL + "/api/slow")
		if !assert.NoError(t, err) {
			slow <- 0
			return
		}
		_ = resp.Body.Close()
		slow <- resp.StatusCode
	}()
	require.Eventually(t, func() bool {
		return len(f.server.ObservedPath("/api/slow")) == 1
	}, 5*time.Second, time.Millisecond)

	// The renewal for the shared token fails and ends the session while
	// the slow call is still outstanding.
	status, _ := f.get(t, "/api/fast")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 1, f.server.RefreshCalls())
	assert.False(t, f.state.IsAuthenticated())

	close(late)
	assert.Equal(t, http.StatusUnauthorized, <-slow)
	assert.Equal(t, 1, f.server.RefreshCalls())
	assert.Len(t, f.server.ObservedPath("/api/slow"), 1)
	_, err := f.tokens.Read(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRoundTripper_RenewalPathNeverRefreshed(t *testing.T) {
	f := newFixture(t, WithPublicPaths(PublicPaths{LoginPath}))
	require.NoError(t, f.state.AcceptNewSession(context.Background(), "first", time.Hour, store.RoleCustomer))
	release := gateRefresh(f, http.StatusUnauthorized, `{"message":"no session"}`)
	release()

	resp, err := f.client.Post(f.server.URL+RefreshPath, "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, f.server.RefreshCalls())
	assert.True(t, f.tokens.IsValid(context.Background()))
}

func TestRoundTripper_IsPublic(t *testing.T) {
	rt, err := New(store.NewMemoryStore(), refresh.New(nil, nil), WithBaseURL("https://api.example.com/v1/"))
	require.NoError(t, err)
	var testCases = []struct {
		description string
		path        string
		expect      bool
	}{
		{description: "login under base", path: "/v1/api/auth/login", expect: true},
		{description: "refresh under base", path: "/v1/api/auth/refresh", expect: true},
		{description: "prefix match", path: "/v1/api/auth/check-username/extra", expect: true},
		{description: "protected", path: "/v1/api/items", expect: false},
		{description: "auth sibling", path: "/v1/api/auth/me", expect: false},
		{description: "missing base", path: "/api/auth/login", expect: true},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expect, rt.IsPublic(testCase.path), testCase.description)
	}
}
