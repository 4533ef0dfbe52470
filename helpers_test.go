package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/cargodesk/go-portal-auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fastHasher keeps bcrypt at its minimum cost so tests stay quick
var fastHasher = auth.BcryptHasher{Cost: bcrypt.MinCost}

// testClock is a settable time source
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTokens(t *testing.T, clock *testClock, opts ...auth.TokenServiceOption) *auth.TokenService {
	t.Helper()
	base := []auth.TokenServiceOption{
		auth.WithClock(clock.Now),
		auth.WithTokenIssuer("cargodesk-test"),
		auth.WithTokenAudience("portal"),
		auth.WithTokenLogger(nopLogger{}),
	}
	ts, err := auth.NewTokenService([]byte(testSecret), time.Hour, append(base, opts...)...)
	require.NoError(t, err)
	return ts
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := fastHasher.HashPassword(password)
	require.NoError(t, err)
	return h
}

// seededStore holds the demo account used across tests
func seededStore(t *testing.T) *auth.MemoryStore {
	t.Helper()
	return auth.NewMemoryStore(auth.UserRecord{
		ID:           "1",
		Name:         "John Doe",
		Email:        "john@example.com",
		PasswordHash: hashed(t, "password"),
	})
}

func newTestAuther(t *testing.T, store auth.CredentialStore, clock *testClock) *auth.Auther {
	t.Helper()
	return auth.NewAuthenticator(store, newTestTokens(t, clock)).
		WithPasswordHasher(fastHasher).
		WithLogger(nopLogger{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// MockCredentialStore implements auth.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) FindByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	args := m.Called(ctx, email)
	rec, _ := args.Get(0).(*auth.UserRecord)
	return rec, args.Error(1)
}

func (m *MockCredentialStore) Create(ctx context.Context, record *auth.UserRecord) (*auth.UserRecord, error) {
	args := m.Called(ctx, record)
	rec, _ := args.Get(0).(*auth.UserRecord)
	return rec, args.Error(1)
}

// countingHasher wraps a hasher and counts comparisons
type countingHasher struct {
	auth.PasswordAuthenticator
	mu       sync.Mutex
	compares int
}

func (h *countingHasher) ComparePasswordAndHash(password, hash string) error {
	h.mu.Lock()
	h.compares++
	h.mu.Unlock()
	return h.PasswordAuthenticator.ComparePasswordAndHash(password, hash)
}

func (h *countingHasher) Compares() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.compares
}

// stubConfig implements auth.Config with plain fields
type stubConfig struct {
	secret          string
	issuer          string
	audience        []string
	lifetime        time.Duration
	extended        time.Duration
	cookieName      string
	cookieSecure    bool
	protectedPrefix string
	authPrefix      string
	loginPath       string
	landingPath     string
	publicLanding   string
	callbackParam   string
	logoutDelay     time.Duration
}

func newStubConfig() *stubConfig {
	return &stubConfig{
		secret:       testSecret,
		issuer:       "cargodesk-test",
		audience:     []string{"portal"},
		lifetime:     time.Hour,
		extended:     30 * 24 * time.Hour,
		cookieSecure: true,
	}
}

func (c *stubConfig) GetSigningKey() string                     { return c.secret }
func (c *stubConfig) GetIssuer() string                         { return c.issuer }
func (c *stubConfig) GetAudience() []string                     { return c.audience }
func (c *stubConfig) GetSessionLifetime() time.Duration         { return c.lifetime }
func (c *stubConfig) GetExtendedSessionLifetime() time.Duration { return c.extended }
func (c *stubConfig) GetCookieName() string                     { return c.cookieName }
func (c *stubConfig) GetCookieSecure() bool                     { return c.cookieSecure }
func (c *stubConfig) GetProtectedPrefix() string                { return c.protectedPrefix }
func (c *stubConfig) GetAuthPrefix() string                     { return c.authPrefix }
func (c *stubConfig) GetLoginPath() string                      { return c.loginPath }
func (c *stubConfig) GetLandingPath() string                    { return c.landingPath }
func (c *stubConfig) GetPublicLandingPath() string              { return c.publicLanding }
func (c *stubConfig) GetCallbackParam() string                  { return c.callbackParam }
func (c *stubConfig) GetLogoutDelay() time.Duration             { return c.logoutDelay }
