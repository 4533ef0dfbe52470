package auth_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"

	auth "github.com/cargodesk/go-portal-auth"
)

func TestReasonFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want auth.DenialReason
	}{
		{name: "nil", err: nil, want: auth.ReasonNone},
		{name: "missing field", err: auth.ErrMissingField, want: auth.ReasonMissingField},
		{name: "no such user", err: auth.ErrNoSuchUser, want: auth.ReasonNoSuchUser},
		{name: "bad password", err: auth.ErrBadPassword, want: auth.ReasonBadPassword},
		{name: "throttled", err: auth.ErrTooManyLoginAttempts, want: auth.ReasonThrottled},
		{name: "expired", err: auth.ErrTokenExpired, want: auth.ReasonTokenInvalid},
		{name: "malformed", err: auth.ErrTokenMalformed, want: auth.ReasonTokenInvalid},
		{name: "missing token", err: auth.ErrTokenMissing, want: auth.ReasonTokenInvalid},
		{name: "config missing", err: auth.ErrConfigMissing, want: auth.ReasonConfigMissing},
		{name: "wrapped with fmt", err: fmt.Errorf("login: %w", auth.ErrBadPassword), want: auth.ReasonBadPassword},
		{name: "plain error", err: stderrors.New("boom"), want: auth.ReasonUnexpected},
		{
			name: "wrapped internal",
			err:  errors.Wrap(stderrors.New("boom"), errors.CategoryInternal, "store failed"),
			want: auth.ReasonUnexpected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.ReasonFromError(tt.err))
		})
	}
}

func TestDenialReason_IsCredentialDenial(t *testing.T) {
	assert.True(t, auth.ReasonMissingField.IsCredentialDenial())
	assert.True(t, auth.ReasonNoSuchUser.IsCredentialDenial())
	assert.True(t, auth.ReasonBadPassword.IsCredentialDenial())

	assert.False(t, auth.ReasonThrottled.IsCredentialDenial())
	assert.False(t, auth.ReasonTokenInvalid.IsCredentialDenial())
	assert.False(t, auth.ReasonUnexpected.IsCredentialDenial())
	assert.False(t, auth.ReasonNone.IsCredentialDenial())
}

func TestPublicLoginError(t *testing.T) {
	assert.Nil(t, auth.PublicLoginError(nil))

	for _, err := range []error{auth.ErrMissingField, auth.ErrNoSuchUser, auth.ErrBadPassword} {
		public := auth.PublicLoginError(err)
		assert.Equal(t, auth.ErrInvalidCredentials, public)
		assert.Equal(t, auth.ErrorPageCredentialsSignin, public.TextCode)
	}

	assert.Equal(t, auth.ErrAccessDenied, auth.PublicLoginError(auth.ErrTooManyLoginAttempts))
	assert.Equal(t, auth.ErrServerError, auth.PublicLoginError(stderrors.New("boom")))
	assert.Equal(t, auth.ErrServerError, auth.PublicLoginError(auth.ErrConfigMissing))
}

func TestSentinelCategoriesAndCodes(t *testing.T) {
	tests := []struct {
		err      *errors.Error
		category any
		code     int
	}{
		{err: auth.ErrMissingField, category: errors.CategoryValidation, code: http.StatusBadRequest},
		{err: auth.ErrNoSuchUser, category: errors.CategoryAuth, code: http.StatusUnauthorized},
		{err: auth.ErrBadPassword, category: errors.CategoryAuth, code: http.StatusUnauthorized},
		{err: auth.ErrTooManyLoginAttempts, category: errors.CategoryRateLimit, code: http.StatusTooManyRequests},
		{err: auth.ErrTokenExpired, category: errors.CategoryAuth, code: http.StatusUnauthorized},
		{err: auth.ErrConfigMissing, category: errors.CategoryInternal, code: http.StatusInternalServerError},
		{err: auth.ErrEmailTaken, category: errors.CategoryConflict, code: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.err.TextCode, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestTokenErrorHelpers(t *testing.T) {
	assert.True(t, auth.IsTokenExpiredError(auth.ErrTokenExpired))
	assert.False(t, auth.IsTokenExpiredError(auth.ErrTokenMalformed))
	assert.False(t, auth.IsTokenExpiredError(nil))

	assert.True(t, auth.IsMalformedError(auth.ErrTokenMalformed))
	assert.False(t, auth.IsMalformedError(auth.ErrTokenExpired))
	assert.False(t, auth.IsMalformedError(nil))

	assert.True(t, auth.IsTokenInvalid(auth.ErrTokenMissing))
	assert.False(t, auth.IsTokenInvalid(auth.ErrBadPassword))
}

func TestCredentialsStringHidesPassword(t *testing.T) {
	c := auth.Credentials{Email: "john@example.com", Password: "hunter2"}
	assert.NotContains(t, c.String(), "hunter2")
	assert.NotContains(t, fmt.Sprintf("%v", c), "hunter2")
	assert.Contains(t, c.String(), "john@example.com")
}
