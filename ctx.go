package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

// DefaultSessionLocalsKey is the router locals key holding the *Session
const DefaultSessionLocalsKey = "session"

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSessionContext sets the Session in the given context
func WithSessionContext(r context.Context, session *Session) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// SessionFromContext finds the session in the context
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok && raw != nil
}

// IdentityFromContext returns the identity of the session in ctx
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return Identity{}, false
	}
	return session.Identity, true
}

// AttachSession stores the session in the router locals and in the request
// context.
func AttachSession(c router.Context, key string, session *Session) {
	if key == "" {
		key = DefaultSessionLocalsKey
	}
	c.Locals(key, session)
	c.SetContext(WithSessionContext(c.Context(), session))
}

// GetRouterSession extracts the Session from the router locals
func GetRouterSession(c router.Context, key string) (*Session, error) {
	if key == "" {
		key = DefaultSessionLocalsKey
	}
	raw := c.Locals(key)
	if raw == nil {
		return nil, ErrUnableToFindSession
	}
	session, ok := raw.(*Session)
	if !ok || session == nil {
		return nil, ErrUnableToDecodeSession
	}
	return session, nil
}
