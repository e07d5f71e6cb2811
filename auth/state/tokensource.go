package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/authpipe/auth/store"
	"golang.org/x/oauth2"
)

// ErrNoSession is returned when no usable token is persisted.
var ErrNoSession = errors.New("no active session")

type tokenSource struct {
	ctx   context.Context
	store *store.Store
}

// Token returns the persisted token as an oauth2 bearer token.
func (t *tokenSource) Token() (*oauth2.Token, error) {
	token, err := t.store.Read(t.ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if !token.ValidAt(t.store.Now(), t.store.SafetyMargin()) {
		return nil, fmt.Errorf("%w: token expires at %v", ErrNoSession, token.ExpiresAt)
	}
	ret := &oauth2.Token{
		AccessToken: token.Token,
		TokenType:   "Bearer",
		Expiry:      token.ExpiresAt,
	}
	return ret.WithExtra(map[string]interface{}{"role": string(token.Role)}), nil
}

// TokenSource exposes the session to oauth2-aware HTTP clients. It never
// renews; expired sessions surface as ErrNoSession.
func (s *State) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, store: s.store}
}
