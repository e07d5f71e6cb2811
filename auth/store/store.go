package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// DefaultSafetyMargin is subtracted from a token expiry before it is
// considered usable.
const DefaultSafetyMargin = 60 * time.Second

var (
	// ErrNotFound is returned when no complete token record is persisted.
	ErrNotFound = errors.New("access token not found")
	// ErrCorrupted is returned when a persisted record cannot be decoded.
	ErrCorrupted = errors.New("access token record corrupted")
	// ErrInvalidToken is returned by Save for unusable input.
	ErrInvalidToken = errors.New("invalid access token")
)

// Backend is a durable key-value holder. Set must apply all values
// atomically: a concurrent Get sees either none or all of them.
type Backend interface {
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Store persists the current AccessToken on a Backend.
type Store struct {
	backend Backend
	margin  time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Save computes the absolute expiry from lifetime and persists the token.
func (s *Store) Save(ctx context.Context, token string, lifetime time.Duration, role Role) (*AccessToken, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	if lifetime < 0 {
		return nil, fmt.Errorf("%w: negative lifetime %v", ErrInvalidToken, lifetime)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unsupported role %q", ErrInvalidToken, role)
	}
	ret := &AccessToken{
		Token:     token,
		ExpiresAt: time.UnixMilli(s.now().Add(lifetime).UnixMilli()),
		Role:      role,
	}
	values := map[string]string{
		KeyAccessToken: ret.Token,
		KeyExpiresAt:   strconv.FormatInt(ret.ExpiresAt.UnixMilli(), 10),
		KeyUserRole:    string(ret.Role),
	}
	if err := s.backend.Set(ctx, values); err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}
	s.logger.Debug("access token saved", slog.String("role", string(role)), slog.Time("expiresAt", ret.ExpiresAt))
	return ret, nil
}

// Read returns the persisted token or ErrNotFound when any required key is
// missing.
func (s *Store) Read(ctx context.Context) (*AccessToken, error) {
	values, err := s.backend.Get(ctx, tokenKeys...)
	if err != nil {
		return nil, fmt.Errorf("failed to read access token: %w", err)
	}
	for _, key := range tokenKeys {
		if values[key] == "" {
			return nil, ErrNotFound
		}
	}
	millis, err := strconv.ParseInt(values[KeyExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: expires_at %q", ErrCorrupted, values[KeyExpiresAt])
	}
	role, err := ParseRole(values[KeyUserRole])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return &AccessToken{
		Token:     values[KeyAccessToken],
		ExpiresAt: time.UnixMilli(millis),
		Role:      role,
	}, nil
}

// IsValid reports whether a token is persisted and outside the safety margin.
// Any read failure counts as invalid.
func (s *Store) IsValid(ctx context.Context) bool {
	token, err := s.Read(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("access token unreadable, treating as invalid", slog.String("error", err.Error()))
		}
		return false
	}
	return token.ValidAt(s.now(), s.margin)
}

// Clear removes the token and every identity key derived from it.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, allKeys...); err != nil {
		return fmt.Errorf("failed to clear access token: %w", err)
	}
	s.logger.Debug("access token cleared")
	return nil
}

// SetIdentity caches profile data next to the token.
func (s *Store) SetIdentity(ctx context.Context, identity Identity) error {
	values := map[string]string{}
	if identity.Username != "" {
		values[KeyUsername] = identity.Username
	}
	if identity.CollegeID != "" {
		values[KeyCollegeID] = identity.CollegeID
	}
	if len(values) == 0 {
		return nil
	}
	if err := s.backend.Set(ctx, values); err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

// Identity returns cached profile data, or ErrNotFound.
func (s *Store) Identity(ctx context.Context) (*Identity, error) {
	values, err := s.backend.Get(ctx, identityKeys...)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity: %w", err)
	}
	ret := &Identity{Username: values[KeyUsername], CollegeID: values[KeyCollegeID]}
	if ret.Username == "" && ret.CollegeID == "" {
		return nil, ErrNotFound
	}
	return ret, nil
}

// SafetyMargin returns the margin applied by IsValid.
func (s *Store) SafetyMargin() time.Duration {
	return s.margin
}

// Now returns the store clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

// New creates a Store on backend.
func New(backend Backend, options ...Option) *Store {
	ret := &Store{
		backend: backend,
		margin:  DefaultSafetyMargin,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}
