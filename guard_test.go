package auth_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/cargodesk/go-portal-auth"
)

func TestGuardRoutes_Classify(t *testing.T) {
	routes := auth.DefaultGuardRoutes()

	tests := []struct {
		path string
		want auth.Classification
	}{
		{path: "", want: auth.Public},
		{path: "/", want: auth.Public},
		{path: "/about", want: auth.Public},
		{path: "/dashboard", want: auth.Protected},
		{path: "/dashboard/", want: auth.Protected},
		{path: "/dashboard/billing", want: auth.Protected},
		{path: "/dashboard/shipments/42/events", want: auth.Protected},
		{path: "dashboard", want: auth.Protected},
		{path: "//dashboard", want: auth.Protected},
		{path: "/auth/../dashboard", want: auth.Protected},
		{path: "/public/../dashboard/billing", want: auth.Protected},
		{path: "/dashboards", want: auth.Public},
		{path: "/dashboard-old", want: auth.Public},
		{path: "/auth", want: auth.AuthPage},
		{path: "/auth/login", want: auth.AuthPage},
		{path: "/auth/error", want: auth.AuthPage},
		{path: "/authors", want: auth.Public},
		{path: "/dashboard/../auth/login", want: auth.AuthPage},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, routes.Classify(tt.path))
		})
	}
}

func TestGuardRoutes_ClassifyCustomLayout(t *testing.T) {
	routes := auth.GuardRoutes{
		ProtectedPrefix: "/app",
		AuthPrefix:      "/account",
	}

	assert.Equal(t, auth.Protected, routes.Classify("/app/orders"))
	assert.Equal(t, auth.AuthPage, routes.Classify("/account/login"))
	assert.Equal(t, auth.Public, routes.Classify("/dashboard"))
	assert.Equal(t, auth.Public, routes.Classify("/auth/login"))
}

func TestGuardRoutes_Decide(t *testing.T) {
	routes := auth.DefaultGuardRoutes()

	tests := []struct {
		name     string
		class    auth.Classification
		valid    bool
		original string
		kind     auth.DecisionKind
		location string
	}{
		{name: "public without session", class: auth.Public, kind: auth.Allow},
		{name: "public with session", class: auth.Public, valid: true, kind: auth.Allow},
		{name: "auth page without session", class: auth.AuthPage, kind: auth.Allow},
		{name: "auth page with session", class: auth.AuthPage, valid: true, kind: auth.RedirectDashboard, location: "/dashboard"},
		{name: "protected with session", class: auth.Protected, valid: true, kind: auth.Allow},
		{
			name:     "protected without session",
			class:    auth.Protected,
			original: "/dashboard/billing",
			kind:     auth.RedirectLogin,
			location: "/auth/login?callbackUrl=%2Fdashboard%2Fbilling",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := routes.Decide(tt.class, tt.valid, tt.original)
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.location, d.Location)
			assert.Equal(t, tt.class, d.Classification)
			assert.Equal(t, tt.kind != auth.Allow, d.IsRedirect())
		})
	}
}

func TestGuardRoutes_LoginURL(t *testing.T) {
	routes := auth.DefaultGuardRoutes()

	assert.Equal(t, "/auth/login?callbackUrl=%2Fdashboard", routes.LoginURL("/dashboard"))
	assert.Equal(t,
		"/auth/login?callbackUrl=%2Fdashboard%2Fbilling%3Ftab%3Dopen%26page%3D2",
		routes.LoginURL("/dashboard/billing?tab=open&page=2"),
	)
	assert.Equal(t, "/auth/login", routes.LoginURL(""))
	assert.Equal(t, "/auth/login", routes.LoginURL("//evil.example.com/x"))
	assert.Equal(t, "/auth/login", routes.LoginURL("https://evil.example.com"))

	routes.CallbackParam = "next"
	assert.Equal(t, "/auth/login?next=%2Fdashboard", routes.LoginURL("/dashboard"))
}

func TestClassificationAndDecisionStrings(t *testing.T) {
	assert.Equal(t, "public", auth.Public.String())
	assert.Equal(t, "auth_page", auth.AuthPage.String())
	assert.Equal(t, "protected", auth.Protected.String())

	assert.Equal(t, "allow", auth.Allow.String())
	assert.Equal(t, "redirect_login", auth.RedirectLogin.String())
	assert.Equal(t, "redirect_dashboard", auth.RedirectDashboard.String())
}

func TestGuardRoutesFromConfig(t *testing.T) {
	cfg := newStubConfig()
	routes := auth.GuardRoutesFromConfig(cfg)
	assert.Equal(t, auth.DefaultGuardRoutes(), routes)

	cfg.protectedPrefix = "/app"
	cfg.loginPath = "/auth/sign-in"
	routes = auth.GuardRoutesFromConfig(cfg)
	assert.Equal(t, "/app", routes.ProtectedPrefix)
	assert.Equal(t, "/auth/sign-in", routes.LoginPath)
	assert.Equal(t, auth.DefaultAuthPrefix, routes.AuthPrefix)

	assert.Equal(t, auth.DefaultGuardRoutes(), auth.GuardRoutesFromConfig(nil))
}

func TestGuard_Evaluate(t *testing.T) {
	clock := newTestClock()
	tokens := newTestTokens(t, clock)

	valid, err := tokens.Issue(johnIdentity)
	require.NoError(t, err)

	expiring, err := tokens.Issue(johnIdentity, auth.WithLifetime(time.Minute))
	require.NoError(t, err)
	clock.Add(time.Minute)

	guard := auth.NewGuard(tokens, auth.DefaultGuardRoutes()).WithLogger(nopLogger{})

	tests := []struct {
		name        string
		req         auth.GuardRequest
		kind        auth.DecisionKind
		location    string
		withSession bool
		withErr     bool
	}{
		{
			name:     "protected without token",
			req:      auth.GuardRequest{Path: "/dashboard/billing", Original: "/dashboard/billing"},
			kind:     auth.RedirectLogin,
			location: "/auth/login?callbackUrl=%2Fdashboard%2Fbilling",
		},
		{
			name:     "protected keeps the query in the callback",
			req:      auth.GuardRequest{Path: "/dashboard", Original: "/dashboard?tab=open"},
			kind:     auth.RedirectLogin,
			location: "/auth/login?callbackUrl=%2Fdashboard%3Ftab%3Dopen",
		},
		{
			name:     "protected falls back to path when original is empty",
			req:      auth.GuardRequest{Path: "/dashboard/billing"},
			kind:     auth.RedirectLogin,
			location: "/auth/login?callbackUrl=%2Fdashboard%2Fbilling",
		},
		{
			name:        "protected with valid token",
			req:         auth.GuardRequest{Path: "/dashboard", Token: valid.Token},
			kind:        auth.Allow,
			withSession: true,
		},
		{
			name:     "protected with expired token",
			req:      auth.GuardRequest{Path: "/dashboard", Original: "/dashboard", Token: expiring.Token},
			kind:     auth.RedirectLogin,
			location: "/auth/login?callbackUrl=%2Fdashboard",
			withErr:  true,
		},
		{
			name:     "protected with garbage token",
			req:      auth.GuardRequest{Path: "/dashboard", Original: "/dashboard", Token: "garbage"},
			kind:     auth.RedirectLogin,
			location: "/auth/login?callbackUrl=%2Fdashboard",
			withErr:  true,
		},
		{
			name:        "auth page with valid token",
			req:         auth.GuardRequest{Path: "/auth/login", Token: valid.Token},
			kind:        auth.RedirectDashboard,
			location:    "/dashboard",
			withSession: true,
		},
		{
			name:    "auth page with garbage token",
			req:     auth.GuardRequest{Path: "/auth/login", Token: "garbage"},
			kind:    auth.Allow,
			withErr: true,
		},
		{
			name: "auth page without token",
			req:  auth.GuardRequest{Path: "/auth/login"},
			kind: auth.Allow,
		},
		{
			name:        "public with valid token",
			req:         auth.GuardRequest{Path: "/", Token: valid.Token},
			kind:        auth.Allow,
			withSession: true,
		},
		{
			name: "public without token",
			req:  auth.GuardRequest{Path: "/pricing"},
			kind: auth.Allow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := guard.Evaluate(tt.req)

			assert.Equal(t, tt.kind, result.Decision.Kind)
			assert.Equal(t, tt.location, result.Decision.Location)

			if tt.withSession {
				require.NotNil(t, result.Session)
				assert.Equal(t, johnIdentity, result.Session.Identity)
			} else {
				assert.Nil(t, result.Session)
			}

			if tt.withErr {
				assert.True(t, auth.IsTokenInvalid(result.Err))
			} else {
				assert.NoError(t, result.Err)
			}
		})
	}
}

func TestGuard_NilReaderTreatsEveryoneAsAnonymous(t *testing.T) {
	guard := auth.NewGuard(nil, auth.GuardRoutes{}).WithLogger(nopLogger{})

	result := guard.Evaluate(auth.GuardRequest{Path: "/dashboard", Token: "anything"})
	assert.Equal(t, auth.RedirectLogin, result.Decision.Kind)
	assert.Nil(t, result.Session)
	assert.NoError(t, result.Err)

	assert.Equal(t, auth.DefaultGuardRoutes(), guard.Routes())
}

func TestGuard_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := auth.NewMetrics(reg)

	guard := auth.NewGuard(newTestTokens(t, newTestClock()), auth.DefaultGuardRoutes()).
		WithLogger(nopLogger{}).
		WithMetrics(metrics)

	guard.Evaluate(auth.GuardRequest{Path: "/dashboard"})
	guard.Evaluate(auth.GuardRequest{Path: "/dashboard/billing"})
	guard.Evaluate(auth.GuardRequest{Path: "/"})

	decisions := metrics.GuardDecisions()
	assert.Equal(t, float64(2), testutil.ToFloat64(decisions.WithLabelValues("protected", "redirect_login")))
	assert.Equal(t, float64(1), testutil.ToFloat64(decisions.WithLabelValues("public", "allow")))
}

func TestGuard_RecordsRejectedSessions(t *testing.T) {
	clock := newTestClock()
	tokens := newTestTokens(t, clock)

	expired, err := tokens.Issue(johnIdentity, auth.WithLifetime(time.Minute))
	require.NoError(t, err)
	clock.Add(time.Minute)

	sink := &recordingSink{}
	guard := auth.NewGuard(tokens, auth.DefaultGuardRoutes()).
		WithLogger(nopLogger{}).
		WithActivitySink(sink)

	guard.Evaluate(auth.GuardRequest{Path: "/dashboard/billing", Token: expired.Token})
	guard.Evaluate(auth.GuardRequest{Path: "/auth/login", Token: "garbage"})

	// public paths and missing tokens are not rejections
	guard.Evaluate(auth.GuardRequest{Path: "/pricing", Token: "garbage"})
	guard.Evaluate(auth.GuardRequest{Path: "/dashboard"})

	events := sink.Events()
	require.Len(t, events, 2)

	assert.Equal(t, auth.ActivityEventSessionRejected, events[0].EventType)
	assert.Equal(t, auth.ReasonFromError(auth.ErrTokenExpired), events[0].Reason)
	assert.Equal(t, "/dashboard/billing", events[0].Metadata["path"])
	assert.Equal(t, "protected", events[0].Metadata["classification"])
	assert.False(t, events[0].OccurredAt.IsZero())

	assert.Equal(t, auth.ActivityEventSessionRejected, events[1].EventType)
	assert.Equal(t, auth.ReasonTokenInvalid, events[1].Reason)
	assert.Equal(t, "auth_page", events[1].Metadata["classification"])
}
