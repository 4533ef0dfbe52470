package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
)

// dummyPassword is hashed once so lookups for unknown emails still run a
// full bcrypt comparison.
const dummyPassword = "portal-auth-timing-equalizer"

type Auther struct {
	store        CredentialStore
	hasher       PasswordAuthenticator
	tokens       *TokenService
	throttle     *LoginThrottle
	logger       Logger
	activitySink ActivitySink
	metrics      *Metrics

	dummyOnce sync.Once
	dummyHash string
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator backed by store and tokens
func NewAuthenticator(store CredentialStore, tokens *TokenService) *Auther {
	return &Auther{
		store:        store,
		hasher:       BcryptHasher{},
		tokens:       tokens,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = resolveLogger(logger)
	return s
}

// WithPasswordHasher replaces the default bcrypt hasher
func (s *Auther) WithPasswordHasher(hasher PasswordAuthenticator) *Auther {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithThrottle enables per-email login throttling
func (s *Auther) WithThrottle(throttle *LoginThrottle) *Auther {
	s.throttle = throttle
	return s
}

func (s *Auther) WithMetrics(metrics *Metrics) *Auther {
	s.metrics = metrics
	return s
}

// TokenService returns the TokenService used to issue sessions
func (s *Auther) TokenService() *TokenService {
	return s.tokens
}

// Authenticate checks email and password against the store. Expected denials
// come back as ErrMissingField, ErrNoSuchUser, ErrBadPassword or
// ErrTooManyLoginAttempts; anything else is an internal failure.
func (s *Auther) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	started := time.Now()

	identity, err := s.authenticate(ctx, email, password)

	reason := ReasonFromError(err)
	s.metrics.loginObserved(reason, started)

	if err != nil {
		if reason == ReasonUnexpected {
			s.logger.Error("authenticate failed", "email", NormalizeEmail(email), "error", err)
		} else {
			s.logger.Debug("authenticate denied", "email", NormalizeEmail(email), "reason", string(reason))
		}
		recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Email:     NormalizeEmail(email),
			Reason:    reason,
		})
		return Identity{}, err
	}

	return identity, nil
}

func (s *Auther) authenticate(ctx context.Context, email, password string) (Identity, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return Identity{}, ErrMissingField
	}

	if !s.throttle.Allow(email) {
		return Identity{}, ErrTooManyLoginAttempts
	}

	record, err := s.store.FindByEmail(ctx, email)
	if err != nil && !IsRecordNotFound(err) {
		return Identity{}, errors.Wrap(err, errors.CategoryInternal, "credential store lookup failed").
			WithTextCode(TextCodeStoreUnavailable).
			WithCode(errors.CodeInternal)
	}

	if record == nil || IsRecordNotFound(err) {
		s.compareDummy(password)
		return Identity{}, ErrNoSuchUser
	}

	if err := s.hasher.ComparePasswordAndHash(password, record.PasswordHash); err != nil {
		if ReasonFromError(err) == ReasonBadPassword {
			return Identity{}, ErrBadPassword
		}
		return Identity{}, errors.Wrap(err, errors.CategoryInternal, "stored password hash is unusable").
			WithTextCode(TextCodeServerError).
			WithCode(errors.CodeInternal)
	}

	s.throttle.Reset(email)

	return record.Identity(), nil
}

// compareDummy burns one bcrypt comparison so unknown emails cost the same
// as wrong passwords.
func (s *Auther) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.HashPassword(dummyPassword)
		if err != nil {
			s.logger.Warn("unable to prepare dummy hash", "error", err)
			return
		}
		s.dummyHash = h
	})
	if s.dummyHash == "" {
		return
	}
	_ = s.hasher.ComparePasswordAndHash(password, s.dummyHash)
}

// Login authenticates and issues a session token
func (s *Auther) Login(ctx context.Context, email, password string, opts ...IssueOption) (*IssuedToken, error) {
	identity, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if s.tokens == nil {
		return nil, ErrConfigMissing
	}

	issued, err := s.tokens.Issue(identity, opts...)
	if err != nil {
		s.logger.Error("Login failed to issue session token", "user_id", identity.ID, "error", err)
		return nil, err
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    identity.ID,
		Email:     identity.Email,
		Metadata: map[string]any{
			"expires_at": issued.ExpiresAt,
		},
	})

	return issued, nil
}

// ReadSession verifies a session token
func (s *Auther) ReadSession(token string) (*Session, error) {
	if s.tokens == nil {
		return nil, ErrConfigMissing
	}
	return s.tokens.ReadSession(token)
}

// Register creates a new user record with a hashed password
func (s *Auther) Register(ctx context.Context, name, email, password string) (Identity, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" {
		return Identity{}, ErrMissingField
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return Identity{}, err
	}

	record, err := s.store.Create(ctx, &UserRecord{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if IsEmailTaken(err) {
			return Identity{}, ErrEmailTaken
		}
		s.logger.Error("Register failed to create record", "email", email, "error", err)
		return Identity{}, errors.Wrap(err, errors.CategoryInternal, "credential store create failed").
			WithTextCode(TextCodeStoreUnavailable).
			WithCode(errors.CodeInternal)
	}

	identity := record.Identity()
	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventRegistered,
		UserID:    identity.ID,
		Email:     identity.Email,
	})

	return identity, nil
}
