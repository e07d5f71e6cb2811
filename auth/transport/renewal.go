package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/viant/authpipe/auth/refresh"
	"github.com/viant/authpipe/auth/store"
)

var (
	// ErrRenewalRejected is returned when the renewal endpoint answers with a
	// status other than 200.
	ErrRenewalRejected = errors.New("renewal rejected")
	// ErrMalformedGrant is returned when a token response cannot be used.
	ErrMalformedGrant = errors.New("malformed token grant")
)

// GrantPayload is the token envelope returned by login, signup and refresh.
type GrantPayload struct {
	Data *struct {
		AccessToken string   `json:"accessToken"`
		ExpiresIn   *float64 `json:"expiresIn"`
		Role        string   `json:"role,omitempty"`
	} `json:"data"`
}

// DecodeGrant parses a token envelope. An absent role is allowed; an unknown
// one is not.
func DecodeGrant(data []byte) (*refresh.Grant, error) {
	var payload GrantPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGrant, err)
	}
	if payload.Data == nil || payload.Data.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing accessToken", ErrMalformedGrant)
	}
	if payload.Data.ExpiresIn == nil || *payload.Data.ExpiresIn < 0 {
		return nil, fmt.Errorf("%w: missing or negative expiresIn", ErrMalformedGrant)
	}
	ret := &refresh.Grant{
		AccessToken: payload.Data.AccessToken,
		ExpiresIn:   time.Duration(*payload.Data.ExpiresIn * float64(time.Second)),
	}
	if payload.Data.Role != "" {
		role, err := store.ParseRole(payload.Data.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedGrant, err)
		}
		ret.Role = role
	}
	return ret, nil
}

// Renewer calls the renewal endpoint. It authenticates with the ambient
// session cookie only; the expired bearer token is never sent.
type Renewer struct {
	URL    string
	client *http.Client
}

func (r *Renewer) Renew(ctx context.Context) (*refresh.Grant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("renewal request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read renewal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRenewalRejected, resp.StatusCode)
	}
	return DecodeGrant(body)
}

// NewRenewer creates a Renewer posting to baseURL + RefreshPath. The client
// transport should carry the session cookie jar and must not be the bearer
// RoundTripper.
func NewRenewer(baseURL string, client *http.Client) *Renewer {
	if client == nil {
		client = &http.Client{}
	}
	return &Renewer{
		URL:    strings.TrimRight(baseURL, "/") + RefreshPath,
		client: client,
	}
}
