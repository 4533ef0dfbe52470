package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-router"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CredentialStore returns user records by email. Implementations must be
// safe for concurrent use.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
	Create(ctx context.Context, record *UserRecord) (*UserRecord, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// SessionReader verifies a raw token and returns its session
type SessionReader interface {
	ReadSession(token string) (*Session, error)
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	SessionReader
	Authenticate(ctx context.Context, email, password string) (Identity, error)
	Login(ctx context.Context, email, password string, opts ...IssueOption) (*IssuedToken, error)
	Register(ctx context.Context, name, email, password string) (Identity, error)
}

type LoginPayload interface {
	GetEmail() string
	GetPassword() string
	GetExtendedSession() bool
}

type HTTPAuthenticator interface {
	Login(c router.Context, payload LoginPayload) (*IssuedToken, error)
	Logout(c router.Context)
	SessionFromRequest(c router.Context) (*Session, error)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetSessionLifetime() time.Duration
	GetExtendedSessionLifetime() time.Duration
	GetCookieName() string
	GetCookieSecure() bool
	GetProtectedPrefix() string
	GetAuthPrefix() string
	GetLoginPath() string
	GetLandingPath() string
	GetPublicLandingPath() string
	GetCallbackParam() string
	GetLogoutDelay() time.Duration
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println(format("[DBG] AUTH ", msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println(format("[INF] AUTH ", msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println(format("[WRN] AUTH ", msg, args))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println(format("[ERR] AUTH ", msg, args))
}

func format(prefix, msg string, args []any) string {
	out := prefix + msg
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			out += fmt.Sprintf(" %v=%v", args[i], args[i+1])
		} else {
			out += fmt.Sprintf(" %v", args[i])
		}
	}
	return out
}

func resolveLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
