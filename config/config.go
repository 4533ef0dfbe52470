// Package config loads the portal auth settings from the environment.
package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"

	auth "github.com/cargodesk/go-portal-auth"
)

// MinSecretLength is the shortest accepted signing secret, in bytes
const MinSecretLength = 32

// Environment variables read by FromEnv
const (
	EnvSecret           = "PORTAL_AUTH_SECRET"
	EnvIssuer           = "PORTAL_AUTH_ISSUER"
	EnvAudience         = "PORTAL_AUTH_AUDIENCE"
	EnvSessionTTL       = "PORTAL_AUTH_SESSION_TTL"
	EnvExtendedTTL      = "PORTAL_AUTH_EXTENDED_TTL"
	EnvCookieName       = "PORTAL_AUTH_COOKIE_NAME"
	EnvCookieSecure     = "PORTAL_AUTH_COOKIE_SECURE"
	EnvLogoutDelay      = "PORTAL_AUTH_LOGOUT_DELAY"
	EnvAddr             = "PORTAL_ADDR"
	EnvMetricsAddr      = "PORTAL_METRICS_ADDR"
	EnvDatabaseDriver   = "PORTAL_DB_DRIVER"
	EnvDatabaseDSN      = "PORTAL_DB_DSN"
	EnvLoginBurst       = "PORTAL_LOGIN_BURST"
	EnvLoginRefill      = "PORTAL_LOGIN_REFILL"
	EnvDebug            = "PORTAL_DEBUG"
	EnvProtectedPrefix  = "PORTAL_PROTECTED_PREFIX"
	EnvLandingPath      = "PORTAL_LANDING_PATH"
	EnvPublicLanding    = "PORTAL_PUBLIC_LANDING"
	EnvRegistration     = "PORTAL_REGISTRATION"
	EnvSeedDemoAccounts = "PORTAL_SEED_DEMO"
)

// Config implements auth.Config
type Config struct {
	SigningKey              string        `json:"-"`
	Issuer                  string        `json:"issuer"`
	Audience                []string      `json:"audience"`
	SessionLifetime         time.Duration `json:"session_lifetime"`
	ExtendedSessionLifetime time.Duration `json:"extended_session_lifetime"`
	CookieName              string        `json:"cookie_name"`
	CookieSecure            bool          `json:"cookie_secure"`
	ProtectedPrefix         string        `json:"protected_prefix"`
	AuthPrefix              string        `json:"auth_prefix"`
	LoginPath               string        `json:"login_path"`
	LandingPath             string        `json:"landing_path"`
	PublicLandingPath       string        `json:"public_landing_path"`
	CallbackParam           string        `json:"callback_param"`
	LogoutDelay             time.Duration `json:"logout_delay"`

	Addr           string        `json:"addr"`
	MetricsAddr    string        `json:"metrics_addr"`
	DatabaseDriver string        `json:"database_driver"`
	DatabaseDSN    string        `json:"-"`
	LoginBurst     int           `json:"login_burst"`
	LoginRefill    time.Duration `json:"login_refill"`
	Registration   bool          `json:"registration"`
	SeedDemo       bool          `json:"seed_demo"`
	Debug          bool          `json:"debug"`
}

var _ auth.Config = Config{}

// Defaults returns a Config with every value but the secret filled in
func Defaults() Config {
	return Config{
		Issuer:                  "cargodesk-portal",
		Audience:                []string{"portal"},
		SessionLifetime:         auth.DefaultSessionLifetime,
		ExtendedSessionLifetime: auth.DefaultExtendedSessionLifetime,
		CookieName:              auth.DefaultCookieName,
		CookieSecure:            true,
		ProtectedPrefix:         auth.DefaultProtectedPrefix,
		AuthPrefix:              auth.DefaultAuthPrefix,
		LoginPath:               auth.DefaultLoginPath,
		LandingPath:             auth.DefaultLandingPath,
		PublicLandingPath:       "/",
		CallbackParam:           auth.DefaultCallbackParam,
		LogoutDelay:             auth.DefaultLogoutDelay,
		Addr:                    ":8978",
		MetricsAddr:             ":9978",
		DatabaseDriver:          "memory",
		LoginBurst:              5,
		LoginRefill:             time.Minute,
		Registration:            true,
		SeedDemo:                true,
	}
}

// LookupFunc matches os.LookupEnv
type LookupFunc func(key string) (string, bool)

// FromEnv reads the process environment
func FromEnv() (Config, error) {
	return Load(os.LookupEnv)
}

// Load builds a Config from lookup on top of Defaults. Malformed values are
// reported as validation errors.
func Load(lookup LookupFunc) (Config, error) {
	cfg := Defaults()
	if lookup == nil {
		return cfg, nil
	}

	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, errors.Wrap(err, errors.CategoryValidation, key+" is not a duration"))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, errors.Wrap(err, errors.CategoryValidation, key+" is not a boolean"))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, errors.Wrap(err, errors.CategoryValidation, key+" is not an integer"))
				return
			}
			*dst = n
		}
	}

	// the secret is taken verbatim, surrounding spaces included
	if v, ok := lookup(EnvSecret); ok {
		cfg.SigningKey = v
	}
	str(EnvIssuer, &cfg.Issuer)
	if v, ok := lookup(EnvAudience); ok && strings.TrimSpace(v) != "" {
		cfg.Audience = splitList(v)
	}
	dur(EnvSessionTTL, &cfg.SessionLifetime)
	dur(EnvExtendedTTL, &cfg.ExtendedSessionLifetime)
	str(EnvCookieName, &cfg.CookieName)
	boolean(EnvCookieSecure, &cfg.CookieSecure)
	dur(EnvLogoutDelay, &cfg.LogoutDelay)
	str(EnvAddr, &cfg.Addr)
	str(EnvMetricsAddr, &cfg.MetricsAddr)
	str(EnvDatabaseDriver, &cfg.DatabaseDriver)
	str(EnvDatabaseDSN, &cfg.DatabaseDSN)
	integer(EnvLoginBurst, &cfg.LoginBurst)
	dur(EnvLoginRefill, &cfg.LoginRefill)
	boolean(EnvDebug, &cfg.Debug)
	str(EnvProtectedPrefix, &cfg.ProtectedPrefix)
	// a moved protected area takes the default landing page with it
	if cfg.ProtectedPrefix != auth.DefaultProtectedPrefix {
		cfg.LandingPath = cfg.ProtectedPrefix
	}
	str(EnvLandingPath, &cfg.LandingPath)
	str(EnvPublicLanding, &cfg.PublicLandingPath)
	boolean(EnvRegistration, &cfg.Registration)
	boolean(EnvSeedDemoAccounts, &cfg.SeedDemo)

	if len(errs) > 0 {
		return cfg, errs[0]
	}

	return cfg, nil
}

// Validate checks the config. A missing secret is reported as
// auth.ErrConfigMissing so callers can tell it apart. The landing page must
// be guarded and the login page must be an auth page, as the guard would
// classify them.
func (c Config) Validate() error {
	if c.SigningKey == "" {
		return auth.ErrConfigMissing
	}

	routes := auth.GuardRoutesFromConfig(c)

	err := validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.By(minBytes(MinSecretLength))),
		validation.Field(&c.SessionLifetime, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.ExtendedSessionLifetime, validation.Required, validation.Min(c.SessionLifetime)),
		validation.Field(&c.CookieName, validation.Required, validation.Match(cookieNamePattern)),
		validation.Field(&c.ProtectedPrefix, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.AuthPrefix, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.LoginPath, validation.Required, validation.By(absolutePath), validation.By(classifiedAs(routes, auth.AuthPage))),
		validation.Field(&c.LandingPath, validation.Required, validation.By(absolutePath), validation.By(classifiedAs(routes, auth.Protected))),
		validation.Field(&c.PublicLandingPath, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.CallbackParam, validation.Required),
		validation.Field(&c.LogoutDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.DatabaseDriver, validation.Required, validation.In("memory", "sqlite", "postgres")),
		validation.Field(&c.DatabaseDSN, validation.By(dsnRequiredFor(c.DatabaseDriver))),
		validation.Field(&c.LoginBurst, validation.Min(0)),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid portal auth configuration").
			WithTextCode("CONFIG_INVALID")
	}
	return nil
}

var cookieNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

func dsnRequiredFor(driver string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if driver == "postgres" && strings.TrimSpace(s) == "" {
			return errors.New("is required for postgres", errors.CategoryValidation)
		}
		return nil
	}
}

// minBytes counts bytes, ozzo's Length counts runes
func minBytes(n int) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if len(s) < n {
			return errors.New("must be at least "+strconv.Itoa(n)+" bytes", errors.CategoryValidation)
		}
		return nil
	}
}

func classifiedAs(routes auth.GuardRoutes, want auth.Classification) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if got := routes.Classify(s); got != want {
			return errors.New("is classified "+got.String()+", want "+want.String(), errors.CategoryValidation)
		}
		return nil
	}
}

func absolutePath(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") {
		return errors.New("must be an absolute path", errors.CategoryValidation)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) GetSigningKey() string                     { return c.SigningKey }
func (c Config) GetIssuer() string                         { return c.Issuer }
func (c Config) GetAudience() []string                     { return c.Audience }
func (c Config) GetSessionLifetime() time.Duration         { return c.SessionLifetime }
func (c Config) GetExtendedSessionLifetime() time.Duration { return c.ExtendedSessionLifetime }
func (c Config) GetCookieName() string                     { return c.CookieName }
func (c Config) GetCookieSecure() bool                     { return c.CookieSecure }
func (c Config) GetProtectedPrefix() string                { return c.ProtectedPrefix }
func (c Config) GetAuthPrefix() string                     { return c.AuthPrefix }
func (c Config) GetLoginPath() string                      { return c.LoginPath }
func (c Config) GetLandingPath() string                    { return c.LandingPath }
func (c Config) GetPublicLandingPath() string              { return c.PublicLandingPath }
func (c Config) GetCallbackParam() string                  { return c.CallbackParam }
func (c Config) GetLogoutDelay() time.Duration             { return c.LogoutDelay }
