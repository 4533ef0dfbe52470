package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

const (
	// DefaultSessionLifetime applies when no lifetime is configured
	DefaultSessionLifetime = 24 * time.Hour
	// DefaultExtendedSessionLifetime applies to "remember me" logins
	DefaultExtendedSessionLifetime = 30 * 24 * time.Hour
)

// TokenService mints and verifies session tokens. It is immutable after
// construction and safe for concurrent use.
type TokenService struct {
	signingKey []byte
	lifetime   time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
	metrics    *Metrics
}

// TokenServiceOption configures a TokenService
type TokenServiceOption func(*TokenService)

// WithClock sets the time source used to stamp and check tokens
func WithClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithTokenIssuer sets the iss claim and requires it when reading
func WithTokenIssuer(issuer string) TokenServiceOption {
	return func(ts *TokenService) {
		ts.issuer = issuer
	}
}

// WithTokenAudience sets the aud claim and requires it when reading
func WithTokenAudience(audience ...string) TokenServiceOption {
	return func(ts *TokenService) {
		ts.audience = append(jwt.ClaimStrings(nil), audience...)
	}
}

func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		ts.logger = resolveLogger(logger)
	}
}

func WithTokenMetrics(metrics *Metrics) TokenServiceOption {
	return func(ts *TokenService) {
		ts.metrics = metrics
	}
}

// NewTokenService returns ErrConfigMissing if signingKey is empty
func NewTokenService(signingKey []byte, lifetime time.Duration, opts ...TokenServiceOption) (*TokenService, error) {
	if len(signingKey) == 0 {
		return nil, ErrConfigMissing
	}

	if lifetime <= 0 {
		lifetime = DefaultSessionLifetime
	}

	key := make([]byte, len(signingKey))
	copy(key, signingKey)

	ts := &TokenService{
		signingKey: key,
		lifetime:   lifetime,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts, nil
}

// NewTokenServiceFromConfig builds a TokenService from Config values
func NewTokenServiceFromConfig(cfg Config, opts ...TokenServiceOption) (*TokenService, error) {
	if cfg == nil {
		return nil, ErrConfigMissing
	}

	base := []TokenServiceOption{
		WithTokenIssuer(cfg.GetIssuer()),
		WithTokenAudience(cfg.GetAudience()...),
	}

	return NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetSessionLifetime(), append(base, opts...)...)
}

// Lifetime returns the default token lifetime
func (ts *TokenService) Lifetime() time.Duration {
	return ts.lifetime
}

type issueOptions struct {
	lifetime time.Duration
}

// IssueOption adjusts a single issuance
type IssueOption func(*issueOptions)

// WithLifetime overrides the token lifetime for one issuance
func WithLifetime(d time.Duration) IssueOption {
	return func(o *issueOptions) {
		if d > 0 {
			o.lifetime = d
		}
	}
}

// Issue signs a new token for identity. iat is now and exp is now plus the
// lifetime, both at second precision.
func (ts *TokenService) Issue(identity Identity, opts ...IssueOption) (*IssuedToken, error) {
	if identity.ID == "" {
		return nil, errors.New("identity must have an id", errors.CategoryInternal).
			WithTextCode(TextCodeServerError)
	}

	o := issueOptions{lifetime: ts.lifetime}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	now := ts.now()
	claims := newSessionClaims(identity, ts.issuer, ts.audience, now, now.Add(o.lifetime))

	signed, err := ts.SignClaims(claims)
	if err != nil {
		return nil, err
	}

	ts.metrics.tokenIssued()

	return &IssuedToken{
		Token:     signed,
		Identity:  identity,
		IssuedAt:  claims.IssuedAt(),
		ExpiresAt: claims.Expires(),
	}, nil
}

// SignClaims signs claims with the configured key
func (ts *TokenService) SignClaims(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}

// Read verifies raw and returns its claims. A token is valid only when the
// signature verifies and now is strictly before exp.
func (ts *TokenService) Read(raw string) (*SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenMissing
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			ts.rejected(TextCodeTokenExpired)
			return nil, ErrTokenExpired
		}
		ts.logger.Debug("session token rejected", "error", err.Error())
		ts.rejected(TextCodeTokenInvalid)
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(TextCodeTokenInvalid).
			WithCode(errors.CodeUnauthorized)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		ts.rejected(TextCodeTokenInvalid)
		return nil, ErrTokenMalformed
	}

	// exp is exclusive
	if !ts.now().Before(claims.Expires()) {
		ts.rejected(TextCodeTokenExpired)
		return nil, ErrTokenExpired
	}

	if claims.UserID() == "" || !ts.audienceAccepted(claims.Audience) {
		ts.rejected(TextCodeTokenInvalid)
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// ReadSession verifies raw and returns the session it carries
func (ts *TokenService) ReadSession(raw string) (*Session, error) {
	claims, err := ts.Read(raw)
	if err != nil {
		return nil, err
	}
	return claims.Session(), nil
}

// audienceAccepted reports whether aud names one of the configured
// audiences. Any audience is accepted when none is configured.
func (ts *TokenService) audienceAccepted(aud jwt.ClaimStrings) bool {
	if len(ts.audience) == 0 {
		return true
	}
	for _, want := range ts.audience {
		for _, got := range aud {
			if got == want {
				return true
			}
		}
	}
	return false
}

func (ts *TokenService) rejected(code string) {
	ts.metrics.tokenRejected(code)
}
