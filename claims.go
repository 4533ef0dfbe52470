package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload of a portal session token
type SessionClaims struct {
	jwt.RegisteredClaims
	UID   string `json:"uid,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Subject returns the subject claim
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID, falling back to the subject
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// TokenID returns the jti claim
func (c *SessionClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedAt returns when the token was minted
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}

// Identity returns the principal the token was issued to
func (c *SessionClaims) Identity() Identity {
	return Identity{
		ID:    c.UserID(),
		Name:  c.Name,
		Email: c.Email,
	}
}

// Session converts verified claims into a Session
func (c *SessionClaims) Session() *Session {
	var aud []string
	if len(c.Audience) > 0 {
		aud = make([]string, len(c.Audience))
		copy(aud, c.Audience)
	}

	return &Session{
		Identity:  c.Identity(),
		TokenID:   c.TokenID(),
		Issuer:    c.Issuer,
		Audience:  aud,
		IssuedAt:  c.IssuedAt(),
		ExpiresAt: c.Expires(),
	}
}

func newSessionClaims(identity Identity, issuer string, audience jwt.ClaimStrings, issuedAt, expiresAt time.Time) *SessionClaims {
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        newTokenID(issuedAt),
		},
		UID:   identity.ID,
		Name:  identity.Name,
		Email: identity.Email,
	}
	if len(audience) > 0 {
		claims.Audience = append(jwt.ClaimStrings(nil), audience...)
	}
	return claims
}
