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

	httpapi "github.com/aussiebroadwan/tally/internal/auth/http"
	"github.com/aussiebroadwan/tally/internal/auth/service"
	"github.com/aussiebroadwan/tally/internal/auth/store"
	rediscache "github.com/aussiebroadwan/tally/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/tally/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/aussiebroadwan/tally/pkg/jwtx"
	"github.com/aussiebroadwan/tally/pkg/otpx"
	"github.com/aussiebroadwan/tally/pkg/slogx"
	goredis "github.com/redis/go-redis/v9"
)

// BuildVersion is overridden at build time with
// -ldflags "-X github.com/aussiebroadwan/tally/internal/auth/app.BuildVersion=...".
var BuildVersion = "v0.1.0"

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	cache   store.Cache
	hasher  *cryptox.Hasher
	totp    *otpx.Engine
	tokens  *jwtx.TokenService
	secrets *cryptox.SecretBox

	// Services
	accountService      *service.AccountService
	mfaService          *service.MFAService
	loginService        *service.LoginService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	return NewWithLogger(cfg, slogx.New(slogx.Config{
		Service: "auth-service",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	}))
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(cfg Config, logger *slog.Logger) (*Application, error) {
	app := &Application{cfg: cfg, logger: logger}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initCache(); err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := app.initCrypto(); err != nil {
		_ = app.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			_ = app.Close()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	if err := app.Close(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// Close releases the cache and database connections. Shutdown calls it;
// use it directly only when Run was never called.
func (app *Application) Close() error {
	var errs []error
	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.Error("error closing cache", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(sqlite.DSN(app.cfg.DatabaseFile))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "file", app.cfg.DatabaseFile)
	return nil
}

// initCache connects to Redis and checks it answers.
func (app *Application) initCache() error {
	client := goredis.NewClient(&goredis.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})
	app.cache = rediscache.NewCache(client, rediscache.DefaultPrefix)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.cache.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", app.cfg.RedisAddr, err)
	}

	app.logger.Info("cache connected", "addr", app.cfg.RedisAddr, "db", app.cfg.RedisDB)
	return nil
}

// initCrypto builds the password hasher, TOTP engine, secret box and token
// service.
func (app *Application) initCrypto() error {
	hasherCfg := app.cfg.HasherConfig()
	pepper, err := cryptox.LoadPepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	hasherCfg.Pepper = pepper

	if app.hasher, err = cryptox.NewHasher(hasherCfg); err != nil {
		return fmt.Errorf("failed to configure password hasher: %w", err)
	}
	if app.totp, err = otpx.NewEngine(app.cfg.TOTPConfig(), app.hasher); err != nil {
		return fmt.Errorf("failed to configure TOTP: %w", err)
	}
	if app.secrets, err = LoadSecretBox(app.cfg, app.logger); err != nil {
		return fmt.Errorf("failed to load master key: %w", err)
	}

	material, err := LoadKeyMaterial(app.cfg, app.logger)
	if err != nil {
		return err
	}
	app.tokens, err = jwtx.NewTokenService(jwtx.Config{
		Issuer:             app.cfg.Issuer,
		Audience:           app.cfg.Audience,
		AccessTokenExpiry:  app.cfg.AccessTokenExpiry,
		RefreshTokenExpiry: app.cfg.RefreshTokenExpiry,
	}, material)
	if err != nil {
		return fmt.Errorf("failed to configure token service: %w", err)
	}

	// Keys are parsed lazily; fail startup rather than the first login.
	if _, err := app.tokens.JWKS(); err != nil {
		return fmt.Errorf("failed to load signing keys: %w", err)
	}
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.accountService = &service.AccountService{
		Store:  app.db,
		Hasher: app.hasher,
	}
	app.mfaService = &service.MFAService{
		Store:   app.db,
		TOTP:    app.totp,
		Secrets: app.secrets,
		QR:      otpx.PNGRenderer{},
	}
	app.loginService = service.NewLoginService(
		app.db,
		app.cache,
		app.hasher,
		app.totp,
		app.tokens,
		app.secrets,
		service.LoginConfig{
			ChallengeTTL:     app.cfg.MFAChallengeTTL,
			LockoutThreshold: app.cfg.LockoutThreshold,
			LockoutWindow:    app.cfg.LockoutWindow,
			LockoutDuration:  app.cfg.LockoutDuration,
		},
	)

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.tokens,
		app.cfg.RateLimits,
		BuildVersion,
		app.db,
		app.cache,
		app.logger,
	)

	// Wire services to router
	router.LoginService = app.loginService
	router.AccountService = app.accountService
	router.MFAService = app.mfaService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
