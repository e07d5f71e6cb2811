package mock

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"
)

// SessionCookie carries the refresh session.
const SessionCookie = "session"

// Observed is a request seen by a protected or public handler.
type Observed struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
}

// Server is an httptest API server.
type Server struct {
	*httptest.Server
	PrivateKey *rsa.PrivateKey
	// TokenLifetime is advertised as expiresIn for every issued token.
	TokenLifetime time.Duration

	// Optional overrides, used instead of the default handlers when set.
	RefreshHandler  http.HandlerFunc
	ResourceHandler http.HandlerFunc

	// RefreshDelay holds every refresh response, widening the window in
	// which concurrent callers pile up behind it.
	RefreshDelay time.Duration

	mu         sync.Mutex
	users      map[string]user
	sessions   map[string]string
	observed   []Observed
	generation atomic.Int64
	refreshes  atomic.Int32
	clock      func() time.Time
}

type user struct {
	password string
	role     string
}

func (s *Server) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

// AddUser registers credentials accepted by the login endpoint.
func (s *Server) AddUser(username, password, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = user{password: password, role: role}
}

// Expire revokes every access token issued so far; refresh sessions survive.
func (s *Server) Expire() {
	s.generation.Add(1)
}

// RevokeSessions drops every refresh session, so renewal fails.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = map[string]string{}
}

// RefreshCalls returns the number of requests received by the refresh endpoint.
func (s *Server) RefreshCalls() int {
	return int(s.refreshes.Load())
}

// Observed returns requests seen so far, in arrival order.
func (s *Server) Observed() []Observed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Observed(nil), s.observed...)
}

// ObservedPath returns requests seen for path.
func (s *Server) ObservedPath(path string) []Observed {
	var ret []Observed
	for _, item := range s.Observed() {
		if item.Path == path {
			ret = append(ret, item)
		}
	}
	return ret
}

func (s *Server) observe(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed = append(s.observed, Observed{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
	})
}

// Option customizes a Server before it starts.
type Option func(*Server)

// WithClock sets the time source for token issuing and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.clock = now
	}
}

// WithTokenLifetime sets the advertised token lifetime.
func WithTokenLifetime(lifetime time.Duration) Option {
	return func(s *Server) {
		s.TokenLifetime = lifetime
	}
}

// NewServer starts a Server; callers must Close it.
func NewServer(options ...Option) (*Server, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	ret := &Server{
		PrivateKey:    privateKey,
		TokenLifetime: time.Hour,
		users:         map[string]user{},
		sessions:      map[string]string{},
	}
	for _, opt := range options {
		opt(ret)
	}
	ret.Server = httptest.NewServer(&Handler{Server: ret})
	return ret, nil
}
