package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	auth "github.com/cargodesk/go-portal-auth"
	"github.com/cargodesk/go-portal-auth/activitymap"
	"github.com/cargodesk/go-portal-auth/config"
	"github.com/cargodesk/go-portal-auth/middleware/guardware"
	"github.com/cargodesk/go-portal-auth/repository"
)

//go:embed views
var viewsFS embed.FS

// demo account available when seeding is on
var demoUser = struct {
	ID       string
	Name     string
	Email    string
	Password string
}{
	ID:       "1",
	Name:     "John Doe",
	Email:    "john@example.com",
	Password: "password",
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("addr", "", "HTTP listen address (overrides "+config.EnvAddr+")")
	f.String("metrics-addr", "", "metrics listen address, \"-\" disables it (overrides "+config.EnvMetricsAddr+")")
	f.String("db-driver", "", "credential store: memory, sqlite or postgres (overrides "+config.EnvDatabaseDriver+")")
	f.String("db-dsn", "", "database DSN (overrides "+config.EnvDatabaseDSN+")")
	f.Bool("debug", false, "dump login payloads, never passwords")
	f.Bool("print-config", false, "print the resolved configuration before serving")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the portal sign-in pages behind the route guard",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		applyServeFlags(cmd, &cfg)

		if err := cfg.Validate(); err != nil {
			return err
		}

		if v, _ := cmd.Flags().GetBool("print-config"); v {
			fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(cfg))
		}

		app, err := newApp(cmd.Context(), cfg, newLogger())
		if err != nil {
			return err
		}
		defer app.Close()

		app.Serve()
		sig := WaitExitSignal()
		app.logger.Info("shutting down", "signal", sig.String())

		return nil
	},
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Addr, _ = f.GetString("addr")
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = f.GetString("metrics-addr")
	}
	if f.Changed("db-driver") {
		cfg.DatabaseDriver, _ = f.GetString("db-driver")
	}
	if f.Changed("db-dsn") {
		cfg.DatabaseDSN, _ = f.GetString("db-dsn")
	}
	if f.Changed("debug") {
		cfg.Debug, _ = f.GetBool("debug")
	}
}

// App holds everything the serve command wires together
type App struct {
	cfg      config.Config
	logger   *glog.BaseLogger
	db       *bun.DB
	store    auth.CredentialStore
	registry *prometheus.Registry
	metrics  *auth.Metrics
	auther   *auth.Auther
	httpAuth *auth.RouteAuthenticator
	guard    *auth.Guard
	activity auth.ActivitySink
	srv      router.Server[*fiber.App]
	metricsS *http.Server
}

func newApp(ctx context.Context, cfg config.Config, lgr *glog.BaseLogger) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	app := &App{cfg: cfg, logger: lgr}

	steps := []func(context.Context, *App) error{
		WithMetrics,
		WithPersistence,
		WithSeedData,
		WithAuthenticator,
		WithHTTPServer,
	}

	for _, step := range steps {
		if err := step(ctx, app); err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func WithMetrics(_ context.Context, app *App) error {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = auth.NewMetrics(app.registry)
	return nil
}

func WithPersistence(ctx context.Context, app *App) error {
	if app.cfg.DatabaseDriver == "" || app.cfg.DatabaseDriver == "memory" {
		app.store = auth.NewMemoryStore()
		return nil
	}

	db, err := repository.Open(app.cfg.DatabaseDriver, app.cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	app.db = db

	if err := repository.Migrate(ctx, db, app.cfg.DatabaseDriver); err != nil {
		return err
	}

	manager := repository.NewManager(db)
	if err := manager.Validate(); err != nil {
		return err
	}
	if err := manager.Ping(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "database is not reachable")
	}

	app.store = manager.Users()
	return nil
}

func WithSeedData(ctx context.Context, app *App) error {
	if !app.cfg.SeedDemo {
		return nil
	}

	hash, err := auth.HashPassword(demoUser.Password)
	if err != nil {
		return err
	}

	_, err = app.store.Create(ctx, &auth.UserRecord{
		ID:           demoUser.ID,
		Name:         demoUser.Name,
		Email:        demoUser.Email,
		PasswordHash: hash,
	})
	if err != nil && !auth.IsEmailTaken(err) {
		return err
	}

	app.GetLogger("seed").Info("demo account ready", "email", demoUser.Email)
	return nil
}

func WithAuthenticator(_ context.Context, app *App) error {
	tokens, err := auth.NewTokenServiceFromConfig(app.cfg,
		auth.WithTokenLogger(app.GetLogger("auth:tokens")),
		auth.WithTokenMetrics(app.metrics),
	)
	if err != nil {
		return err
	}

	auditLogger := app.GetLogger("auth:audit")
	app.activity = auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		n := activitymap.Normalize(event, activitymap.WithDefaultChannel("portal"))
		auditLogger.Info("activity",
			"actor", n.ActorID,
			"verb", n.Verb,
			"object", n.ObjectType,
			"metadata", print.MaybePrettyJSON(n.Metadata),
		)
		return nil
	})

	app.auther = auth.NewAuthenticator(app.store, tokens).
		WithLogger(app.GetLogger("auth:authn")).
		WithThrottle(auth.NewLoginThrottle(app.cfg.LoginBurst, app.cfg.LoginRefill)).
		WithMetrics(app.metrics).
		WithActivitySink(app.activity)

	httpAuth, err := auth.NewHTTPAuthenticator(app.auther, app.cfg)
	if err != nil {
		return err
	}
	app.httpAuth = httpAuth.
		WithLogger(app.GetLogger("auth:http")).
		WithActivitySink(app.activity)

	app.guard = auth.NewGuard(app.auther, auth.GuardRoutesFromConfig(app.cfg)).
		WithLogger(app.GetLogger("auth:guard")).
		WithMetrics(app.metrics).
		WithActivitySink(app.activity)

	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	sub, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return err
	}
	engine := django.NewFileSystem(http.FS(sub), ".html")

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	opts := []auth.AuthControllerOption{
		auth.WithAuther(app.httpAuth),
		auth.WithControllerConfig(app.cfg),
		auth.WithControllerLogger(app.GetLogger("auth:ctrl")),
		auth.WithControllerDebug(app.cfg.Debug),
		auth.WithControllerErrorHandler(app.httpAuth.ErrorHandler),
	}
	if app.cfg.Registration {
		opts = append(opts, auth.WithAccounts(app.auther))
	}
	controller := auth.NewAuthController(opts...)

	srv.Router().Use(guardware.New(guardware.Config{
		Guard:       app.guard,
		Filter:      guardware.SkipPaths(controller.Routes.Logout),
		TokenLookup: "cookie:" + app.httpAuth.CookieName() + ",header:Authorization",
		OnReject: func(ctx router.Context, result auth.GuardResult) {
			// a token was sent but did not verify, drop the stale cookie
			if result.Err != nil {
				app.httpAuth.ClearSession(ctx)
			}
		},
	}))

	auth.MountAuthRoutes(srv.Router(), controller)

	srv.Router().Get("/", func(ctx router.Context) error {
		return ctx.Render("home", router.ViewContext{})
	}).SetName("home.get")

	srv.Router().Get(app.cfg.LandingPath, app.DashboardShow).
		SetName("dashboard.get")

	app.srv = srv

	if app.cfg.MetricsAddr != "" && app.cfg.MetricsAddr != "-" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", auth.MetricsHandler(app.registry))
		app.metricsS = &http.Server{
			Addr:              app.cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return nil
}

// DashboardShow renders the landing page for the signed in user
func (a *App) DashboardShow(ctx router.Context) error {
	session, err := a.httpAuth.CurrentSession(ctx)
	if err != nil {
		return a.httpAuth.ErrorHandler(ctx, err)
	}
	return ctx.Render("dashboard", router.ViewContext{
		"identity":   session.Identity,
		"expires_at": session.ExpiresAt.Format(time.RFC1123),
	})
}

// Serve starts the portal and, when configured, the metrics listener
func (a *App) Serve() {
	logger := a.GetLogger("serve")

	if a.metricsS != nil {
		go func() {
			logger.Info("metrics listening", "addr", a.metricsS.Addr)
			if err := a.metricsS.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics listener stopped", "error", err)
			}
		}()
	}

	logger.Info("portal listening", "addr", a.cfg.Addr)
	go func() {
		if err := a.srv.Serve(a.cfg.Addr); err != nil {
			logger.Error("portal listener stopped", "error", err)
		}
	}()
}

// Close stops the listeners and releases the database handle
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.srv != nil {
		_ = a.srv.Shutdown(ctx)
	}
	if a.metricsS != nil {
		_ = a.metricsS.Shutdown(ctx)
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
