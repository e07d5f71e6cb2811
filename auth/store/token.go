package store

import (
	"fmt"
	"time"
)

// Role tags the identity a token was issued for.
type Role string

const (
	RoleGuest    Role = "guest"
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleCustomer, RoleOwner, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts a wire value into a Role.
func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.Valid() {
		return "", fmt.Errorf("unsupported role %q", value)
	}
	return role, nil
}

// AccessToken is the persisted bearer credential.
type AccessToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Role      Role      `json:"role"`
}

// ValidAt reports whether the token is still usable at now, keeping margin
// in reserve before its expiry.
func (t *AccessToken) ValidAt(now time.Time, margin time.Duration) bool {
	if t == nil || t.Token == "" {
		return false
	}
	return t.ExpiresAt.After(now.Add(margin))
}

// Identity is the cached profile data that lives next to the token and is
// cleared together with it.
type Identity struct {
	Username  string `json:"username,omitempty"`
	CollegeID string `json:"collegeId,omitempty"`
}

const (
	KeyAccessToken = "access_token"
	KeyExpiresAt   = "expires_at"
	KeyUserRole    = "user_role"
	KeyUsername    = "username"
	KeyCollegeID   = "college_id"
)

var (
	tokenKeys    = []string{KeyAccessToken, KeyExpiresAt, KeyUserRole}
	identityKeys = []string{KeyUsername, KeyCollegeID}
	allKeys      = append(append([]string{}, tokenKeys...), identityKeys...)
)
