package auth

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes attached to the errors returned by this package.
const (
	TextCodeMissingField      = "MISSING_FIELD"
	TextCodeNoSuchUser        = "NO_SUCH_USER"
	TextCodeBadPassword       = "BAD_PASSWORD"
	TextCodeTooManyAttempts   = "TOO_MANY_ATTEMPTS"
	TextCodeInvalidCreds      = "CredentialsSignin"
	TextCodeAccessDenied      = "AccessDenied"
	TextCodeTokenExpired      = "TOKEN_EXPIRED"
	TextCodeTokenInvalid      = "TOKEN_INVALID"
	TextCodeTokenMissing      = "TOKEN_MISSING"
	TextCodeConfigMissing     = "CONFIG_MISSING"
	TextCodeRecordNotFound    = "RECORD_NOT_FOUND"
	TextCodeEmailTaken        = "EMAIL_TAKEN"
	TextCodeEmptyPassword     = "EMPTY_PASSWORD"
	TextCodeStoreUnavailable  = "STORE_UNAVAILABLE"
	TextCodeSessionNotFound   = "SESSION_NOT_FOUND"
	TextCodeServerError       = "SERVER_ERROR"
	TextCodeSessionDecodeFail = "SESSION_DECODE_ERROR"
)

// ErrMissingField is returned when email or password are empty
var ErrMissingField = errors.New("email and password are required", errors.CategoryValidation).
	WithTextCode(TextCodeMissingField).
	WithCode(errors.CodeBadRequest)

// ErrNoSuchUser is returned when no record matches the email
var ErrNoSuchUser = errors.New("no user registered for email", errors.CategoryAuth).
	WithTextCode(TextCodeNoSuchUser).
	WithCode(errors.CodeUnauthorized)

// ErrBadPassword is returned when the password does not match the stored hash
var ErrBadPassword = errors.New("password does not match", errors.CategoryAuth).
	WithTextCode(TextCodeBadPassword).
	WithCode(errors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned when the login throttle rejects an attempt
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(http.StatusTooManyRequests)

// ErrInvalidCredentials is the only login failure shown to end users
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrAccessDenied is shown to end users when a login is refused for policy reasons
var ErrAccessDenied = errors.New("access denied, try again later", errors.CategoryAuthz).
	WithTextCode(TextCodeAccessDenied).
	WithCode(errors.CodeForbidden)

// ErrServerError is shown to end users for unexpected failures
var ErrServerError = errors.New("an unexpected server error occurred", errors.CategoryInternal).
	WithTextCode(TextCodeServerError).
	WithCode(errors.CodeInternal)

// ErrTokenExpired is returned for tokens at or past their expiry
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that cannot be decoded or verified
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMissing is returned when a request carries no session token
var ErrTokenMissing = errors.New("session token missing", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMissing).
	WithCode(errors.CodeUnauthorized)

// ErrConfigMissing is returned at startup when the signing secret is absent
var ErrConfigMissing = errors.New("session signing secret is not configured", errors.CategoryInternal).
	WithTextCode(TextCodeConfigMissing).
	WithCode(errors.CodeInternal)

// ErrRecordNotFound is returned by credential stores when no record matches
var ErrRecordNotFound = errors.New("user record not found", errors.CategoryNotFound).
	WithTextCode(TextCodeRecordNotFound).
	WithCode(errors.CodeNotFound)

// ErrEmailTaken is returned by credential stores on duplicate emails
var ErrEmailTaken = errors.New("email already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrUnableToFindSession is returned when no session is attached to a request
var ErrUnableToFindSession = errors.New("unable to find session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToDecodeSession is returned when request locals hold something else
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionDecodeFail).
	WithCode(errors.CodeUnauthorized)

// DenialReason classifies expected authentication failures.
type DenialReason string

const (
	ReasonNone          DenialReason = ""
	ReasonMissingField  DenialReason = "MissingField"
	ReasonNoSuchUser    DenialReason = "NoSuchUser"
	ReasonBadPassword   DenialReason = "BadPassword"
	ReasonThrottled     DenialReason = "Throttled"
	ReasonTokenInvalid  DenialReason = "TokenInvalid"
	ReasonConfigMissing DenialReason = "ConfigMissing"
	ReasonUnexpected    DenialReason = "Unexpected"
)

// IsCredentialDenial reports whether the reason should be collapsed into
// ErrInvalidCredentials for the end user.
func (r DenialReason) IsCredentialDenial() bool {
	switch r {
	case ReasonMissingField, ReasonNoSuchUser, ReasonBadPassword:
		return true
	}
	return false
}

// ReasonFromError maps an error to its DenialReason using the text code.
func ReasonFromError(err error) DenialReason {
	if err == nil {
		return ReasonNone
	}

	switch textCode(err) {
	case TextCodeMissingField:
		return ReasonMissingField
	case TextCodeNoSuchUser:
		return ReasonNoSuchUser
	case TextCodeBadPassword:
		return ReasonBadPassword
	case TextCodeTooManyAttempts:
		return ReasonThrottled
	case TextCodeTokenExpired, TextCodeTokenInvalid, TextCodeTokenMissing:
		return ReasonTokenInvalid
	case TextCodeConfigMissing:
		return ReasonConfigMissing
	}

	if IsTokenExpiredError(err) || IsMalformedError(err) {
		return ReasonTokenInvalid
	}

	return ReasonUnexpected
}

// PublicLoginError returns the error that is safe to show to the user for a
// failed login. It never distinguishes unknown emails from bad passwords.
func PublicLoginError(err error) *errors.Error {
	switch ReasonFromError(err) {
	case ReasonNone:
		return nil
	case ReasonMissingField, ReasonNoSuchUser, ReasonBadPassword:
		return ErrInvalidCredentials
	case ReasonThrottled:
		return ErrAccessDenied
	default:
		return ErrServerError
	}
}

// IsTokenInvalid reports whether err means "not authenticated".
func IsTokenInvalid(err error) bool {
	return ReasonFromError(err) == ReasonTokenInvalid
}

// IsRecordNotFound reports whether a store error means the record is absent.
func IsRecordNotFound(err error) bool {
	return err != nil && textCode(err) == TextCodeRecordNotFound
}

// IsEmailTaken reports whether a store error is a duplicate email.
func IsEmailTaken(err error) bool {
	return err != nil && textCode(err) == TextCodeEmailTaken
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return textCode(err) == TextCodeTokenExpired ||
		strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return textCode(err) == TextCodeTokenInvalid ||
		strings.Contains(err.Error(), "token is malformed")
}

func textCode(err error) string {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr != nil {
		return richErr.TextCode
	}
	return ""
}
