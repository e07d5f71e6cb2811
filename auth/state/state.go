// Package state keeps the process view of "is the caller authenticated".
//
// State is a cache over the token store, never a second source of truth. It is
// rebuilt from the store by Initialize and changed only by AcceptNewSession and
// EndSession; everything else reads it.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viant/authpipe/auth/store"
)

// Session is a derived snapshot of the authentication state.
type Session struct {
	Authenticated bool       `json:"authenticated"`
	Role          store.Role `json:"role,omitempty"`
}

// State mirrors the token store for cheap reads.
type State struct {
	mu          sync.RWMutex
	session     Session
	store       *store.Store
	logger      *slog.Logger
	subscribers map[int]chan Session
	nextID      int
}

// Initialize rebuilds the session from the store. A record that cannot be
// decoded is destroyed.
func (s *State) Initialize(ctx context.Context) error {
	token, err := s.store.Read(ctx)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
	case errors.Is(err, store.ErrCorrupted):
		s.logger.Warn("discarding corrupted session", slog.String("error", err.Error()))
		if cErr := s.store.Clear(ctx); cErr != nil {
			s.set(Session{})
			return cErr
		}
	default:
		s.logger.Warn("session store unreadable", slog.String("error", err.Error()))
	}
	next := Session{}
	if token.ValidAt(s.store.Now(), s.store.SafetyMargin()) {
		next = Session{Authenticated: true, Role: token.Role}
	}
	s.set(next)
	return nil
}

// AcceptNewSession persists a freshly issued token and marks the caller
// authenticated.
func (s *State) AcceptNewSession(ctx context.Context, token string, lifetime time.Duration, role store.Role) error {
	if _, err := s.store.Save(ctx, token, lifetime, role); err != nil {
		return err
	}
	s.set(Session{Authenticated: true, Role: role})
	return nil
}

// EndSession clears the store and marks the caller unauthenticated. The local
// view is reset even when clearing fails.
func (s *State) EndSession(ctx context.Context) error {
	err := s.store.Clear(ctx)
	s.set(Session{})
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

func (s *State) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *State) IsAuthenticated() bool {
	return s.Session().Authenticated
}

func (s *State) Role() store.Role {
	return s.Session().Role
}

// LastRole returns the role of the persisted token even when it has expired,
// falling back to guest when nothing is persisted.
func (s *State) LastRole(ctx context.Context) store.Role {
	if token, err := s.store.Read(ctx); err == nil {
		return token.Role
	}
	if role := s.Role(); role != "" {
		return role
	}
	return store.RoleGuest
}

// Store returns the backing token store.
func (s *State) Store() *store.Store {
	return s.store
}

// Subscribe returns a channel receiving every session transition and a
// function releasing it. A slow subscriber only keeps the latest snapshot.
func (s *State) Subscribe() (<-chan Session, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan Session, 1)
	s.subscribers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

func (s *State) set(next Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.session
	s.session = next
	if prev != next {
		s.logger.Debug("session changed", slog.Bool("authenticated", next.Authenticated), slog.String("role", string(next.Role)))
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- next:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- next
		}
	}
}

// New creates a State over the given store. Call Initialize before use.
func New(tokens *store.Store, options ...Option) *State {
	ret := &State{
		store:       tokens,
		logger:      slog.Default(),
		subscribers: map[int]chan Session{},
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

type Option func(*State)

// WithLogger sets logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *State) {
		if logger != nil {
			s.logger = logger
		}
	}
}
