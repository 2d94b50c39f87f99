package portal

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the session token payload. The stored profile, not the
// token, is the source of truth for role and approval.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

var _ Session = (*SessionClaims)(nil)

// Subject returns the subject claim
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID maps the subject to the principal id.
func (c *SessionClaims) UserID() string {
	return PrincipalIDFromSubject(c.RegisteredClaims.Subject).String()
}

// Expires returns the expiry, zero if the token has none.
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

// IssuedAt returns the issued at time, zero if unset.
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}
