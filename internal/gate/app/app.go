package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpapi "github.com/aussiebroadwan/schoolgate/internal/gate/http"
	"github.com/aussiebroadwan/schoolgate/internal/gate/service"
	"github.com/aussiebroadwan/schoolgate/internal/gate/store"
	"github.com/aussiebroadwan/schoolgate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/schoolgate/pkg/cryptox"
	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
	"github.com/aussiebroadwan/schoolgate/pkg/ratelimit"
	"github.com/aussiebroadwan/schoolgate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the gate with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	keys    Keys
	redis   *redis.Client // nil unless REDIS_URL is set
	limiter ratelimit.Limiter

	// Services
	sessionService       *service.SessionService
	impersonationService *service.ImpersonationService
	seedService          *service.SeedService
	housekeepingService  *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := slogx.New(slogx.Config{
		Service: "schoolgate",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg:    cfg,
		logger: logger,
	}

	if err := httpx.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)
	if err := cryptox.LoadPepper(); err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keys, err := InitKeys(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize keys: %w", err)
	}
	app.keys = keys

	if err := app.initLimiter(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Seed creates the first MASTER identity and returns its password, which is
// generated when password is empty.
func (app *Application) Seed(ctx context.Context, email, password string) (string, error) {
	return app.seedService.SeedMaster(slogx.WithContext(ctx, app.logger), email, password)
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("gate starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"dev_hosts", app.cfg.DevHosts,
		"trusted_proxies", app.cfg.TrustedProxies,
		"oauth", app.keys.OAuth != nil,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gate...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	return app.Close()
}

// Close releases the store and Redis connections.
func (app *Application) Close() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gate stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initLimiter picks the role-switch limiter: Redis-backed when REDIS_URL is
// set, in-memory otherwise.
func (app *Application) initLimiter() error {
	if app.cfg.RedisURL == "" {
		app.limiter = ratelimit.NewInMemory(app.cfg.SwitchLimit, app.cfg.SwitchWindow)
		app.logger.Info("role switch limiter: in-memory",
			"limit", app.cfg.SwitchLimit,
			"window", app.cfg.SwitchWindow,
		)
		return nil
	}

	opts, err := redis.ParseURL(app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	app.redis = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := app.redis.Ping(ctx).Err(); err != nil {
		// Not fatal: the limiter falls back to memory until Redis answers.
		app.logger.Warn("redis unreachable at startup", "error", err)
	}

	rl := ratelimit.NewRedis(app.redis, app.cfg.SwitchLimit, app.cfg.SwitchWindow)
	rl.Prefix = "schoolgate:rl:"
	rl.Logger = app.logger
	app.limiter = rl

	app.logger.Info("role switch limiter: redis",
		"addr", opts.Addr,
		"limit", app.cfg.SwitchLimit,
		"window", app.cfg.SwitchWindow,
	)
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.sessionService = &service.SessionService{
		Store:  app.db,
		Signer: app.keys.Signer,
		OAuth:  app.keys.OAuth,
		Issuer: app.cfg.Issuer,
		TTL:    app.cfg.SessionTTL,
	}

	app.impersonationService = &service.ImpersonationService{
		Store:   app.db,
		Signer:  app.keys.Signer,
		Limiter: app.limiter,
	}

	app.seedService = &service.SeedService{Store: app.db}

	var sweepers []ratelimit.Sweeper
	if sw, ok := app.limiter.(ratelimit.Sweeper); ok {
		sweepers = append(sweepers, sw)
	}
	app.housekeepingService = service.NewHousekeepingService(
		app.logger,
		app.cfg.HousekeepingInterval,
		sweepers...,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keys.Sessions,
		httpx.NewDevHosts(app.cfg.DevHosts...),
		app.keys.Signer,
		app.keys.OAuthKeys,
		httpapi.CookieConfig{Secure: app.cfg.CookieSecure},
		BuildVersion,
		app.db,
		app.logger,
	)

	router.SessionService = app.sessionService
	router.ImpersonationService = app.impersonationService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Handler returns the gate's HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.router
}
