package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// DefaultCookieName is the cookie that carries the session token
const DefaultCookieName = "portal_session"

type RouteAuthenticator struct {
	auth             Authenticator
	cfg              Config
	routes           GuardRoutes
	extendedLifetime time.Duration
	cookieName       string
	cookieSecure     bool
	now              func() time.Time
	activitySink     ActivitySink
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

var _ HTTPAuthenticator = (*RouteAuthenticator)(nil)

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	if auther == nil || cfg == nil {
		return nil, ErrConfigMissing
	}

	extended := cfg.GetExtendedSessionLifetime()
	if extended <= 0 {
		extended = DefaultExtendedSessionLifetime
	}

	cookieName := cfg.GetCookieName()
	if cookieName == "" {
		cookieName = DefaultCookieName
	}

	a := &RouteAuthenticator{
		cfg:              cfg,
		auth:             auther,
		routes:           GuardRoutesFromConfig(cfg),
		extendedLifetime: extended,
		cookieName:       cookieName,
		cookieSecure:     cfg.GetCookieSecure(),
		now:              time.Now,
		activitySink:     noopActivitySink{},
		Logger:           defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	a.Logger = resolveLogger(logger)
	return a
}

// WithActivitySink records logout events to sink
func (a *RouteAuthenticator) WithActivitySink(sink ActivitySink) *RouteAuthenticator {
	a.activitySink = normalizeActivitySink(sink)
	return a
}

// CookieName returns the name of the session cookie
func (a *RouteAuthenticator) CookieName() string {
	return a.cookieName
}

// Routes returns the path layout used for redirects
func (a *RouteAuthenticator) Routes() GuardRoutes {
	return a.routes
}

func (a *RouteAuthenticator) GetExtendedCookieDuration() time.Duration {
	return a.extendedLifetime
}

// Login authenticates the payload and sets the session cookie. Extended
// sessions get a persistent cookie, others a browser-session cookie.
func (a *RouteAuthenticator) Login(c router.Context, payload LoginPayload) (*IssuedToken, error) {
	var opts []IssueOption
	if payload.GetExtendedSession() {
		opts = append(opts, WithLifetime(a.extendedLifetime))
	}

	issued, err := a.auth.Login(c.Context(), payload.GetEmail(), payload.GetPassword(), opts...)
	if err != nil {
		return nil, err
	}

	var expires time.Time
	if payload.GetExtendedSession() {
		expires = issued.ExpiresAt
	}

	a.setCookieToken(c, issued.Token, expires)
	return issued, nil
}

// Logout drops the session cookie. Tokens are stateless, nothing is revoked.
func (a *RouteAuthenticator) Logout(c router.Context) {
	event := ActivityEvent{EventType: ActivityEventLogout}
	if session, err := a.CurrentSession(c); err == nil {
		event.UserID = session.Identity.ID
		event.Email = session.Identity.Email
	}

	a.ClearSession(c)

	recordActivity(c.Context(), a.activitySink, a.Logger, event)
}

// ClearSession expires the session cookie without recording a logout, for
// requests whose token was already rejected.
func (a *RouteAuthenticator) ClearSession(c router.Context) {
	a.cookieDel(c, a.cookieName)
}

// TokenFromRequest returns the session token from the cookie or, failing
// that, from a bearer Authorization header.
func (a *RouteAuthenticator) TokenFromRequest(c router.Context) string {
	if tok := strings.TrimSpace(c.Cookies(a.cookieName)); tok != "" {
		return tok
	}
	return BearerToken(c.Header("Authorization"))
}

// SessionFromRequest verifies the token carried by the request
func (a *RouteAuthenticator) SessionFromRequest(c router.Context) (*Session, error) {
	tok := a.TokenFromRequest(c)
	if tok == "" {
		return nil, ErrTokenMissing
	}
	return a.auth.ReadSession(tok)
}

// CurrentSession returns the session the guard attached to the request,
// verifying the request token when nothing is attached.
func (a *RouteAuthenticator) CurrentSession(c router.Context) (*Session, error) {
	if session, err := GetRouterSession(c, DefaultSessionLocalsKey); err == nil {
		return session, nil
	}
	return a.SessionFromRequest(c)
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func (a *RouteAuthenticator) setCookieToken(c router.Context, val string, expires time.Time) {
	c.Cookie(&router.Cookie{
		Name:     a.cookieName,
		Value:    val,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   a.cookieSecure,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  a.now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cookieSecure,
		SameSite: "Lax",
	})
}

// RedirectStatus is 302 for GET and HEAD and 303 otherwise, so a rejected
// POST is retried as a GET.
func RedirectStatus(method string) int {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		return http.StatusFound
	}
	return http.StatusSeeOther
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	a.Logger.Info(
		"Authentication error, redirecting to login",
		"reason", string(ReasonFromError(err)),
		"path", c.Path(),
	)

	a.ClearSession(c)

	return c.Redirect(a.routes.LoginURL(c.OriginalURL()), RedirectStatus(c.Method()))
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Error(
		"Auth handler error",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		if IsTokenInvalid(richErr) {
			return a.AuthErrorHandler(c, richErr)
		}
	}

	public := ErrServerError
	if richErr.Category == errors.CategoryAuth || richErr.Category == errors.CategoryAuthz ||
		richErr.Category == errors.CategoryRateLimit || richErr.Category == errors.CategoryValidation {
		public = PublicLoginError(richErr)
	}

	status := public.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}

	return c.Status(status).Render("auth/error", router.ViewContext{
		"error_code": public.TextCode,
		"message":    ErrorMessage(public.TextCode),
	})
}
