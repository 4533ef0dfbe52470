package guardware

import (
	"context"
	"net/url"
	"path"
	"strings"

	auth "github.com/cargodesk/go-portal-auth"
	"github.com/goliatone/go-router"
)

var defaultTokenLookup = "cookie:" + auth.DefaultCookieName + ",header:Authorization"

// ValidationListener is invoked after a session verified, before the
// request proceeds.
type ValidationListener func(ctx router.Context, session *auth.Session) error

type Config struct {
	// Guard evaluates each request. Required.
	Guard *auth.Guard

	// Filter skips the guard entirely when it returns true
	Filter func(router.Context) bool

	// TokenLookup lists token sources, e.g. "cookie:portal_session,header:Authorization"
	TokenLookup string
	AuthScheme  string

	// ContextKey is the locals key the session is stored under
	ContextKey string

	// TemplateUserKey receives the session identity for views
	TemplateUserKey string

	// ContextEnricher propagates the session to the standard context
	ContextEnricher func(c context.Context, session *auth.Session) context.Context

	ValidationListeners []ValidationListener

	// OnReject runs before a redirect is sent
	OnReject func(ctx router.Context, result auth.GuardResult)

	// ErrorHandler handles listener failures
	ErrorHandler router.ErrorHandler
}

func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			result := cfg.Guard.Evaluate(auth.GuardRequest{
				Context:  ctx.Context(),
				Path:     ctx.Path(),
				Original: ctx.OriginalURL(),
				Token:    ExtractRawTokenFromContext(ctx, extractors),
			})

			if result.Decision.IsRedirect() {
				if cfg.OnReject != nil {
					cfg.OnReject(ctx, result)
				}
				return ctx.Redirect(result.Decision.Location, auth.RedirectStatus(ctx.Method()))
			}

			if result.Session != nil {
				if err := cfg.runValidationListeners(ctx, result.Session); err != nil {
					return cfg.ErrorHandler(ctx, err)
				}

				auth.AttachSession(ctx, cfg.ContextKey, result.Session)
				ctx.Locals(cfg.TemplateUserKey, result.Session.Identity)

				if cfg.ContextEnricher != nil {
					ctx.SetContext(cfg.ContextEnricher(ctx.Context(), result.Session))
				}
			}

			return ctx.Next()
		}
	}
}

// SkipPaths returns a Filter matching the given paths exactly, after
// cleaning. Use it for routes that must run whatever the session state,
// such as logout.
func SkipPaths(paths ...string) func(router.Context) bool {
	skip := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		skip[cleanPath(p)] = struct{}{}
	}
	return func(ctx router.Context) bool {
		_, ok := skip[cleanPath(ctx.Path())]
		return ok
	}
}

func cleanPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Guard == nil {
		panic("AUTH: guard middleware configuration: Guard is required.")
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = auth.DefaultSessionLocalsKey
	}

	if cfg.TemplateUserKey == "" {
		cfg.TemplateUserKey = "current_user"
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			return c.Status(router.StatusUnauthorized).SendString("Unauthorized")
		}
	}

	return cfg
}

func (cfg *Config) runValidationListeners(ctx router.Context, session *auth.Session) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, session); err != nil {
			return err
		}
	}
	return nil
}

// TokenExtractor returns the raw token from one source, "" when absent
type TokenExtractor func(c router.Context) string

// ExtractRawTokenFromContext returns the first token any extractor finds
func ExtractRawTokenFromContext(ctx router.Context, extractors []TokenExtractor) string {
	for _, extractor := range extractors {
		if raw := extractor(ctx); raw != "" {
			return raw
		}
	}
	return ""
}

// GetExtractors parses a lookup string such as
// "cookie:portal_session,header:Authorization,query:token".
func GetExtractors(tokenLookup string, authSchemes ...string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 && strings.TrimSpace(authSchemes[0]) != "" {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}
		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if name == "" {
			continue
		}

		switch source {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

func tokenFromHeader(header, authScheme string) TokenExtractor {
	return func(c router.Context) string {
		a := strings.TrimSpace(c.Header(header))
		l := len(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l+1:])
		}
		return ""
	}
}

func tokenFromQuery(param string) TokenExtractor {
	return func(c router.Context) string {
		u, err := url.Parse(c.OriginalURL())
		if err != nil {
			return ""
		}
		return u.Query().Get(param)
	}
}

func tokenFromCookie(name string) TokenExtractor {
	return func(c router.Context) string {
		return strings.TrimSpace(c.Cookies(name))
	}
}
