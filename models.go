package auth

import (
	"strings"
	"time"
)

// UserRecord is what a CredentialStore keeps for each user
type UserRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

// Identity returns the subset of the record that is safe to embed in a session
func (u UserRecord) Identity() Identity {
	return Identity{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
	}
}

// Identity is the authenticated principal carried by a session
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// IsZero reports whether the identity is empty
func (i Identity) IsZero() bool {
	return i.ID == "" && i.Email == ""
}

// Credentials is a single login attempt. It is never stored.
type Credentials struct {
	Email    string
	Password string
}

// String hides the password so credentials can't leak into logs.
func (c Credentials) String() string {
	return "email=" + c.Email + " password=[redacted]"
}

// IssuedToken is a freshly signed session token
type IssuedToken struct {
	Token     string
	Identity  Identity
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Session is the verified content of a session token
type Session struct {
	Identity  Identity  `json:"identity"`
	TokenID   string    `json:"token_id,omitempty"`
	Issuer    string    `json:"issuer,omitempty"`
	Audience  []string  `json:"audience,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetUserID returns the session subject
func (s *Session) GetUserID() string {
	return s.Identity.ID
}

// Remaining returns how long the session stays valid after now
func (s *Session) Remaining(now time.Time) time.Duration {
	if s == nil || !now.Before(s.ExpiresAt) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// NormalizeEmail is the canonical form used to key user records
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
