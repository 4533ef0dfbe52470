package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// DefaultLogoutDelay is how long the logout page waits before leaving
const DefaultLogoutDelay = 2 * time.Second

// AccountRegisterer creates new accounts
type AccountRegisterer interface {
	Register(ctx context.Context, name, email, password string) (Identity, error)
}

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)
	MountAuthRoutes(app, controller)
	return controller
}

// MountAuthRoutes registers the handlers of an already built controller
func MountAuthRoutes[T any](app router.Router[T], controller *AuthController) {
	app.Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.get")

	app.Get(controller.Routes.Error, controller.ErrorShow).
		SetName("auth-error.get")

	if controller.Accounts != nil {
		app.Get(controller.Routes.Register, controller.RegistrationShow).
			SetName("register.get")
		app.Post(controller.Routes.Register, controller.RegistrationCreate).
			SetName("register.post")
	}
}

type AuthControllerRoutes struct {
	Login    string
	Logout   string
	Register string
	Error    string
}

type AuthControllerViews struct {
	Login    string
	Logout   string
	Register string
	Error    string
}

type AuthController struct {
	Debug         bool
	Logger        Logger
	Routes        *AuthControllerRoutes
	Views         *AuthControllerViews
	Auther        HTTPAuthenticator
	Accounts      AccountRegisterer
	Guard         GuardRoutes
	PublicLanding string
	LogoutDelay   time.Duration
	ErrorHandler  router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Logger = resolveLogger(logger)
		return ac
	}
}

func WithAuther(auther HTTPAuthenticator) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Auther = auther
		return ac
	}
}

// WithAccounts enables the registration routes
func WithAccounts(accounts AccountRegisterer) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Accounts = accounts
		return ac
	}
}

// WithControllerConfig applies paths and delays from cfg
func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if cfg == nil {
			return ac
		}
		ac.Guard = GuardRoutesFromConfig(cfg)
		ac.Routes.Login = ac.Guard.LoginPath
		ac.Routes.Logout = ac.Guard.AuthPrefix + "/logout"
		ac.Routes.Register = ac.Guard.AuthPrefix + "/register"
		ac.Routes.Error = ac.Guard.AuthPrefix + "/error"
		if landing := cfg.GetPublicLandingPath(); landing != "" {
			ac.PublicLanding = landing
		}
		if d := cfg.GetLogoutDelay(); d > 0 {
			ac.LogoutDelay = d
		}
		return ac
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Debug = debug
		return ac
	}
}

func WithControllerErrorHandler(handler router.ErrorHandler) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if handler != nil {
			ac.ErrorHandler = handler
		}
		return ac
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:        defLogger{},
		ErrorHandler:  defaultErrHandler,
		Guard:         DefaultGuardRoutes(),
		PublicLanding: "/",
		LogoutDelay:   DefaultLogoutDelay,
		Routes: &AuthControllerRoutes{
			Login:    DefaultLoginPath,
			Logout:   DefaultAuthPrefix + "/logout",
			Register: DefaultAuthPrefix + "/register",
			Error:    DefaultAuthPrefix + "/error",
		},
		Views: &AuthControllerViews{
			Login:    "auth/login",
			Logout:   "auth/logout",
			Register: "auth/register",
			Error:    "auth/error",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	return c
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	callback := ""
	if raw := queryParam(ctx, a.Guard.CallbackParam); raw != "" {
		callback = a.Guard.SafeCallback(raw)
	}

	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors":         nil,
		"record":         nil,
		"callback_param": a.Guard.CallbackParam,
		"callback":       callback,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email       string `form:"email" json:"email"`
	Password    string `form:"password" json:"password"`
	RememberMe  bool   `form:"remember_me" json:"remember_me"`
	CallbackURL string `form:"callbackUrl" json:"callbackUrl"`
}

// GetEmail returns the email
func (r LoginRequest) GetEmail() string {
	return r.Email
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession reports whether "remember me" was checked
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Warn("login parse payload", "error", err)
		return ctx.Status(http.StatusBadRequest).Render(a.Views.Login, router.ViewContext{
			"errors":         map[string]string{"form": "Failed to parse form"},
			"callback_param": a.Guard.CallbackParam,
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(http.StatusBadRequest).Render(a.Views.Login, router.ViewContext{
			"record":         router.ViewContext{"email": payload.Email, "remember_me": payload.RememberMe},
			"validation":     FormatValidationErrorToMap(err),
			"callback_param": a.Guard.CallbackParam,
			"callback":       payload.CallbackURL,
		})
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(map[string]any{
			"email":       payload.Email,
			"remember_me": payload.RememberMe,
			"callback":    payload.CallbackURL,
		}))
		fmt.Println("=========================")
	}

	if _, err := a.Auther.Login(ctx, payload); err != nil {
		return a.renderLoginError(ctx, err)
	}

	redirect := a.Guard.SafeCallback(payload.CallbackURL)
	a.Logger.Debug("login succeeded, redirecting", "location", redirect)

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AuthController) renderLoginError(ctx router.Context, err error) error {
	public := PublicLoginError(err)

	status := http.StatusUnauthorized
	switch ReasonFromError(err) {
	case ReasonThrottled:
		status = http.StatusTooManyRequests
	case ReasonUnexpected, ReasonConfigMissing:
		a.Logger.Error("login failed", "error", err)
		status = http.StatusInternalServerError
	}

	return ctx.Status(status).Render(a.Views.Error, router.ViewContext{
		"error_code": public.TextCode,
		"message":    ErrorMessage(public.TextCode),
		"login_url":  a.Guard.LoginPath,
	})
}

// LogOut drops the session cookie and shows a page that moves on to the
// public landing page after LogoutDelay.
func (a *AuthController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)

	delay := int(math.Ceil(a.LogoutDelay.Seconds()))
	if delay < 0 {
		delay = 0
	}

	ctx.SetHeader("Refresh", fmt.Sprintf("%d; url=%s", delay, a.PublicLanding))

	return ctx.Render(a.Views.Logout, router.ViewContext{
		"delay":    delay,
		"redirect": a.PublicLanding,
	})
}

// ErrorShow renders the message for the code in the error query parameter
func (a *AuthController) ErrorShow(ctx router.Context) error {
	code := queryParam(ctx, "error")

	return ctx.Render(a.Views.Error, router.ViewContext{
		"error_code": code,
		"message":    ErrorMessage(code),
		"login_url":  a.Guard.LoginPath,
	})
}

func (a *AuthController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegistrationRequest{},
	})
}

// RegistrationRequest is the form payload
type RegistrationRequest struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	if a.Accounts == nil {
		return ctx.Status(http.StatusNotFound).SendString("registration disabled")
	}

	payload := new(RegistrationRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return ctx.Status(http.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": router.ViewContext{"name": payload.Name, "email": payload.Email},
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(http.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"record":     router.ViewContext{"name": payload.Name, "email": payload.Email},
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if _, err := a.Accounts.Register(ctx.Context(), payload.Name, payload.Email, payload.Password); err != nil {
		if IsEmailTaken(err) {
			return ctx.Status(http.StatusConflict).Render(a.Views.Register, router.ViewContext{
				"record": router.ViewContext{"name": payload.Name, "email": payload.Email},
				"errors": map[string]string{"email": "An account with this email already exists"},
			})
		}
		a.Logger.Error("register user", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(a.Guard.LoginPath, router.StatusSeeOther)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into
// field -> message.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

func queryParam(ctx router.Context, key string) string {
	u, err := url.Parse(ctx.OriginalURL())
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Status(http.StatusInternalServerError).Render("auth/error", router.ViewContext{
		"error_code": TextCodeServerError,
		"message":    ErrorMessage(TextCodeServerError),
	})
}
