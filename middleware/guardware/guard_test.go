package guardware_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/cargodesk/go-portal-auth"
	"github.com/cargodesk/go-portal-auth/authtest"
	"github.com/cargodesk/go-portal-auth/middleware/guardware"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var john = auth.Identity{ID: "1", Name: "John Doe", Email: "john@example.com"}

func newTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService([]byte(testSecret), time.Hour)
	require.NoError(t, err)
	return ts
}

func newGuard(t *testing.T) (*auth.Guard, string) {
	t.Helper()
	ts := newTokens(t)
	issued, err := ts.Issue(john)
	require.NoError(t, err)
	return auth.NewGuard(ts, auth.DefaultGuardRoutes()), issued.Token
}

func noopHandler(router.Context) error { return nil }

func run(cfg guardware.Config, ctx *authtest.Context) error {
	return guardware.New(cfg)(noopHandler)(ctx)
}

func TestNew_PanicsWithoutGuard(t *testing.T) {
	assert.Panics(t, func() {
		guardware.New(guardware.Config{})
	})
	assert.Panics(t, func() {
		guardware.New()
	})
}

func TestGuardMiddleware_Decisions(t *testing.T) {
	guard, token := newGuard(t)

	tests := []struct {
		name         string
		method       string
		url          string
		cookie       string
		header       string
		wantRedirect string
		wantStatus   int
		wantNext     bool
		wantSession  bool
	}{
		{
			name:         "protected without session",
			method:       http.MethodGet,
			url:          "/dashboard/shipments?status=late",
			wantRedirect: "/auth/login?callbackUrl=%2Fdashboard%2Fshipments%3Fstatus%3Dlate",
			wantStatus:   http.StatusFound,
		},
		{
			name:         "protected post without session",
			method:       http.MethodPost,
			url:          "/dashboard/shipments",
			wantRedirect: "/auth/login?callbackUrl=%2Fdashboard%2Fshipments",
			wantStatus:   http.StatusSeeOther,
		},
		{
			name:         "protected with garbage cookie",
			method:       http.MethodGet,
			url:          "/dashboard",
			cookie:       "garbage",
			wantRedirect: "/auth/login?callbackUrl=%2Fdashboard",
			wantStatus:   http.StatusFound,
		},
		{
			name:        "protected with cookie",
			method:      http.MethodGet,
			url:         "/dashboard/invoices",
			cookie:      token,
			wantNext:    true,
			wantSession: true,
		},
		{
			name:        "protected with bearer header",
			method:      http.MethodGet,
			url:         "/dashboard/invoices",
			header:      "Bearer " + token,
			wantNext:    true,
			wantSession: true,
		},
		{
			name:         "auth page with session",
			method:       http.MethodGet,
			url:          "/auth/login",
			cookie:       token,
			wantRedirect: "/dashboard",
			wantStatus:   http.StatusFound,
		},
		{
			name:     "auth page without session",
			method:   http.MethodGet,
			url:      "/auth/login",
			wantNext: true,
		},
		{
			name:     "public without session",
			method:   http.MethodGet,
			url:      "/pricing",
			wantNext: true,
		},
		{
			name:        "public with session",
			method:      http.MethodGet,
			url:         "/pricing",
			cookie:      token,
			wantNext:    true,
			wantSession: true,
		},
		{
			name:     "prefix lookalike is public",
			method:   http.MethodGet,
			url:      "/dashboards",
			wantNext: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := authtest.NewContext(tt.method, tt.url)
			if tt.cookie != "" {
				ctx.RequestCookies[auth.DefaultCookieName] = tt.cookie
			}
			if tt.header != "" {
				ctx.Headers["Authorization"] = tt.header
			}

			require.NoError(t, run(guardware.Config{Guard: guard}, ctx))

			assert.Equal(t, tt.wantRedirect, ctx.RedirectLocation)
			if tt.wantRedirect != "" {
				assert.Equal(t, tt.wantStatus, ctx.RedirectStatus)
			}
			assert.Equal(t, tt.wantNext, ctx.NextCalled)

			session, err := auth.GetRouterSession(ctx, "")
			if tt.wantSession {
				require.NoError(t, err)
				assert.Equal(t, john, session.Identity)
				assert.Equal(t, john, ctx.LocalsM["current_user"])

				fromCtx, ok := auth.SessionFromContext(ctx.Context())
				require.True(t, ok)
				assert.Equal(t, session, fromCtx)
			} else {
				assert.ErrorIs(t, err, auth.ErrUnableToFindSession)
			}
		})
	}
}

func TestGuardMiddleware_OnReject(t *testing.T) {
	guard, _ := newGuard(t)

	var got []auth.GuardResult
	cfg := guardware.Config{
		Guard: guard,
		OnReject: func(ctx router.Context, result auth.GuardResult) {
			got = append(got, result)
		},
	}

	ctx := authtest.NewContext(http.MethodGet, "/dashboard")
	ctx.RequestCookies[auth.DefaultCookieName] = "garbage"
	require.NoError(t, run(cfg, ctx))

	require.Len(t, got, 1)
	assert.Equal(t, auth.RedirectLogin, got[0].Decision.Kind)
	assert.True(t, auth.IsTokenInvalid(got[0].Err))

	// allowed requests never reach OnReject
	ctx = authtest.NewContext(http.MethodGet, "/pricing")
	require.NoError(t, run(cfg, ctx))
	assert.Len(t, got, 1)
}

func TestGuardMiddleware_Filter(t *testing.T) {
	guard, _ := newGuard(t)

	cfg := guardware.Config{
		Guard: guard,
		Filter: func(c router.Context) bool {
			return c.Path() == "/dashboard/health"
		},
	}

	ctx := authtest.NewContext(http.MethodGet, "/dashboard/health")
	require.NoError(t, run(cfg, ctx))
	assert.True(t, ctx.NextCalled)
	assert.Empty(t, ctx.RedirectLocation)

	ctx = authtest.NewContext(http.MethodGet, "/dashboard/other")
	require.NoError(t, run(cfg, ctx))
	assert.False(t, ctx.NextCalled)
	assert.NotEmpty(t, ctx.RedirectLocation)
}

func TestGuardMiddleware_CustomKeys(t *testing.T) {
	guard, token := newGuard(t)

	type enrichedKey struct{}

	cfg := guardware.Config{
		Guard:           guard,
		TokenLookup:     "query:token",
		ContextKey:      "portal_session",
		TemplateUserKey: "viewer",
		ContextEnricher: func(c context.Context, session *auth.Session) context.Context {
			return context.WithValue(c, enrichedKey{}, session.GetUserID())
		},
	}

	ctx := authtest.NewContext(http.MethodGet, "/dashboard?token="+token)
	require.NoError(t, run(cfg, ctx))
	require.True(t, ctx.NextCalled)

	session, err := auth.GetRouterSession(ctx, "portal_session")
	require.NoError(t, err)
	assert.Equal(t, "1", session.GetUserID())
	assert.Equal(t, john, ctx.LocalsM["viewer"])
	assert.Equal(t, "1", ctx.Context().Value(enrichedKey{}))
}

func TestGuardMiddleware_ValidationListeners(t *testing.T) {
	guard, token := newGuard(t)

	var seen []string
	listenerErr := errors.New("account suspended")

	cfg := guardware.Config{
		Guard: guard,
		ValidationListeners: []guardware.ValidationListener{
			nil,
			func(ctx router.Context, session *auth.Session) error {
				seen = append(seen, session.GetUserID())
				return nil
			},
			func(ctx router.Context, session *auth.Session) error {
				return listenerErr
			},
		},
	}

	ctx := authtest.NewContext(http.MethodGet, "/dashboard")
	ctx.RequestCookies[auth.DefaultCookieName] = token
	require.NoError(t, run(cfg, ctx))

	assert.Equal(t, []string{"1"}, seen)
	assert.False(t, ctx.NextCalled)
	assert.Equal(t, http.StatusUnauthorized, ctx.StatusCode)
	assert.Equal(t, "Unauthorized", ctx.ResponseBody)

	_, err := auth.GetRouterSession(ctx, "")
	assert.ErrorIs(t, err, auth.ErrUnableToFindSession)
}

func TestGuardMiddleware_ValidationListenerErrorHandler(t *testing.T) {
	guard, token := newGuard(t)

	var handled error
	cfg := guardware.Config{
		Guard: guard,
		ValidationListeners: []guardware.ValidationListener{
			func(ctx router.Context, session *auth.Session) error {
				return errors.New("nope")
			},
		},
		ErrorHandler: func(c router.Context, err error) error {
			handled = err
			return c.Status(http.StatusForbidden).SendString("Forbidden")
		},
	}

	ctx := authtest.NewContext(http.MethodGet, "/dashboard")
	ctx.RequestCookies[auth.DefaultCookieName] = token
	require.NoError(t, run(cfg, ctx))

	assert.EqualError(t, handled, "nope")
	assert.Equal(t, http.StatusForbidden, ctx.StatusCode)
}

func TestGuardMiddleware_WithAuthenticator(t *testing.T) {
	hash, err := auth.BcryptHasher{Cost: bcrypt.MinCost}.HashPassword("password")
	require.NoError(t, err)

	store := auth.NewMemoryStore(auth.UserRecord{ID: "1", Name: "John Doe", Email: "john@example.com", PasswordHash: hash})
	auther := auth.NewAuthenticator(store, newTokens(t)).WithPasswordHasher(auth.BcryptHasher{Cost: bcrypt.MinCost})

	issued, err := auther.Login(context.Background(), "john@example.com", "password")
	require.NoError(t, err)

	guard := auth.NewGuard(auther, auth.DefaultGuardRoutes())

	ctx := authtest.NewContext(http.MethodGet, "/dashboard")
	ctx.RequestCookies[auth.DefaultCookieName] = issued.Token
	require.NoError(t, run(guardware.Config{Guard: guard}, ctx))
	assert.True(t, ctx.NextCalled)
}

func TestGuardMiddleware_SignedInLogout(t *testing.T) {
	guard, token := newGuard(t)

	signedIn := func() *authtest.Context {
		ctx := authtest.NewContext(http.MethodGet, "/auth/logout")
		ctx.RequestCookies[auth.DefaultCookieName] = token
		return ctx
	}

	// logout lives under the auth pages, which send signed in users away
	ctx := signedIn()
	require.NoError(t, run(guardware.Config{Guard: guard}, ctx))
	assert.False(t, ctx.NextCalled)
	assert.Equal(t, "/dashboard", ctx.RedirectLocation)

	ctx = signedIn()
	require.NoError(t, run(guardware.Config{
		Guard:  guard,
		Filter: guardware.SkipPaths("/auth/logout"),
	}, ctx))
	assert.True(t, ctx.NextCalled)
	assert.Empty(t, ctx.RedirectLocation)
	assert.Zero(t, ctx.RedirectStatus)

	// the rest of the auth pages are still guarded
	ctx = authtest.NewContext(http.MethodGet, "/auth/login")
	ctx.RequestCookies[auth.DefaultCookieName] = token
	require.NoError(t, run(guardware.Config{
		Guard:  guard,
		Filter: guardware.SkipPaths("/auth/logout"),
	}, ctx))
	assert.False(t, ctx.NextCalled)
	assert.Equal(t, "/dashboard", ctx.RedirectLocation)
}

func TestSkipPaths(t *testing.T) {
	skip := guardware.SkipPaths("/auth/logout", "healthz")

	tests := []struct {
		path string
		want bool
	}{
		{path: "/auth/logout", want: true},
		{path: "/auth/logout/", want: true},
		{path: "/auth//logout", want: true},
		{path: "/healthz", want: true},
		{path: "/auth/logout/extra", want: false},
		{path: "/auth/login", want: false},
		{path: "/auth", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, skip(authtest.NewContext(http.MethodGet, tt.path)))
		})
	}
}

func TestGetExtractors(t *testing.T) {
	ctx := authtest.NewContext(http.MethodGet, "/x?token=from-query")
	ctx.RequestCookies["sid"] = " from-cookie "
	ctx.Headers["Authorization"] = "Token from-header"
	ctx.Headers["X-Auth"] = "Bearer other"

	tests := []struct {
		name   string
		lookup string
		scheme string
		want   string
		count  int
	}{
		{name: "cookie first", lookup: "cookie:sid,header:Authorization", scheme: "Token", want: "from-cookie", count: 2},
		{name: "custom scheme", lookup: "header:Authorization", scheme: "Token", want: "from-header", count: 1},
		{name: "scheme mismatch", lookup: "header:Authorization", scheme: "Bearer", want: "", count: 1},
		{name: "default scheme", lookup: "header:X-Auth", want: "other", count: 1},
		{name: "query", lookup: "query:token", want: "from-query", count: 1},
		{name: "missing cookie falls through", lookup: "cookie:nope,query:token", want: "from-query", count: 2},
		{name: "malformed parts skipped", lookup: "cookie,header:,unknown:x,query:token", want: "from-query", count: 1},
		{name: "empty", lookup: "", want: "", count: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var extractors []guardware.TokenExtractor
			if tt.scheme != "" {
				extractors = guardware.GetExtractors(tt.lookup, tt.scheme)
			} else {
				extractors = guardware.GetExtractors(tt.lookup)
			}
			assert.Len(t, extractors, tt.count)
			assert.Equal(t, tt.want, guardware.ExtractRawTokenFromContext(ctx, extractors))
		})
	}
}

func TestGetDefaultConfig(t *testing.T) {
	guard, _ := newGuard(t)

	cfg := guardware.GetDefaultConfig(guardware.Config{Guard: guard})
	assert.Equal(t, "cookie:portal_session,header:Authorization", cfg.TokenLookup)
	assert.Equal(t, "Bearer", cfg.AuthScheme)
	assert.Equal(t, auth.DefaultSessionLocalsKey, cfg.ContextKey)
	assert.Equal(t, "current_user", cfg.TemplateUserKey)
	assert.NotNil(t, cfg.ErrorHandler)
}
