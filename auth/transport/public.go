package transport

import "strings"

// Well-known API paths.
const (
	LoginPath         = "/api/auth/login"
	SignupPath        = "/api/auth/signup"
	RefreshPath       = "/api/auth/refresh"
	CheckUsernamePath = "/api/auth/check-username"
)

// PublicPaths lists path prefixes that never carry a bearer token.
type PublicPaths []string

// DefaultPublicPaths returns the allow-list of unauthenticated endpoints.
func DefaultPublicPaths() PublicPaths {
	return PublicPaths{LoginPath, SignupPath, RefreshPath, CheckUsernamePath}
}

// Match reports whether path starts with one of the public prefixes.
func (p PublicPaths) Match(path string) bool {
	for _, prefix := range p {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
