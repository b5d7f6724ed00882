package auth

import (
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/grantsnap/statekit/authcache"
	"github.com/grantsnap/statekit/validation"
)

// Claims is the access token payload.
type Claims struct {
	gojwt.RegisteredClaims
	Email        string         `json:"email,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// SetDefaults fills the standard time claims before signing.
func (c *Claims) SetDefaults(now time.Time, ttl time.Duration, issuer string, audience []string) {
	if c.IssuedAt == nil {
		c.IssuedAt = gojwt.NewNumericDate(now)
	}
	if c.ExpiresAt == nil {
		c.ExpiresAt = gojwt.NewNumericDate(now.Add(ttl))
	}
	if c.Issuer == "" {
		c.Issuer = issuer
	}
	if len(c.Audience) == 0 && len(audience) > 0 {
		c.Audience = audience
	}
}

// Validate checks the identity claims a session needs: a subject, and an
// email that looks like one when present.
func (c *Claims) Validate() error {
	return validation.New().
		Required("sub", c.Subject).
		Email("email", c.Email).
		Validate()
}

// Identity converts the claims into the cached identity.
func (c *Claims) Identity() *authcache.Identity {
	return &authcache.Identity{
		ID:       c.Subject,
		Email:    c.Email,
		Metadata: c.UserMetadata,
	}
}

// NewClaims returns an empty Claims for token parsing.
func NewClaims() *Claims { return &Claims{} }
