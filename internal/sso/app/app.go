package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/zwj1kor/Agentic-sso/internal/sso/http"
	"github.com/zwj1kor/Agentic-sso/internal/sso/oidc"
	"github.com/zwj1kor/Agentic-sso/internal/sso/service"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store/drivers/memory"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store/drivers/redis"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store/drivers/sqlite"
	"github.com/zwj1kor/Agentic-sso/pkg/httpx"
	"github.com/zwj1kor/Agentic-sso/pkg/jwtx"
	"github.com/zwj1kor/Agentic-sso/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags "-X".
var BuildVersion = "v0.1.0"

// startupTimeout bounds provider discovery and the first key fetch.
const startupTimeout = 30 * time.Second

// Application encapsulates the broker with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	provider *oidc.Client

	// Services
	authFlow            *service.AuthFlow
	housekeepingService *service.HousekeepingService // nil for backends with native expiry

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New validates cfg, opens the store and resolves the identity provider.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "sso-broker",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	if err := app.initProvider(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler returns the broker's HTTP handler with all middleware applied.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	if app.housekeepingService != nil {
		app.housekeepingService.Start()
	}

	app.logger.Info("sso broker starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"store", app.cfg.StoreDriver,
		"issuer", app.cfg.Issuer,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

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

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down sso broker...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.housekeepingService != nil {
		app.housekeepingService.Stop()
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("sso broker stopped")
	return nil
}

// initStore opens the configured backend and applies its migrations.
func (app *Application) initStore() error {
	var (
		db  store.Store
		err error
	)

	switch app.cfg.StoreDriver {
	case StoreSQLite:
		db, err = sqlite.NewStore(app.cfg.DatabaseFile)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
	case StoreRedis:
		db = redis.NewStore(redis.Config{
			Addr:      app.cfg.RedisAddr,
			Password:  app.cfg.RedisPassword,
			DB:        app.cfg.RedisDB,
			KeyPrefix: app.cfg.RedisKeyPrefix,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to reach redis at %s: %w", app.cfg.RedisAddr, err)
		}
	default:
		db = memory.NewStore()
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply store migrations: %w", err)
	}

	app.db = db
	app.logger.Info("store ready", "driver", app.cfg.StoreDriver)
	return nil
}

func (app *Application) httpClient() *http.Client {
	hc := &http.Client{Timeout: app.cfg.HTTPClientTimeout}
	if app.cfg.DisableTLSVerify {
		app.logger.Warn("TLS verification of identity provider calls is disabled")
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for dev
		hc.Transport = transport
	}
	return hc
}

// initProvider resolves the provider endpoints and warms the key cache.
// A failed first key fetch is not fatal; readiness reports it until a
// later fetch succeeds.
func (app *Application) initProvider(ctx context.Context) error {
	provider, err := oidc.New(ctx, oidc.Config{
		Issuer:             app.cfg.Issuer,
		ClientID:           app.cfg.ClientID,
		ClientSecret:       app.cfg.ClientSecret,
		RedirectURL:        app.cfg.RedirectURI,
		Scopes:             app.cfg.Scopes,
		Discovery:          app.cfg.Discovery,
		AuthURL:            app.cfg.AuthURL,
		TokenURL:           app.cfg.TokenURL,
		JWKSURL:            app.cfg.JWKSURL,
		HTTPClient:         app.httpClient(),
		MinRefreshInterval: app.cfg.JWKSRefreshMin,
		KeysMaxAge:         app.cfg.JWKSMaxAge,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize identity provider: %w", err)
	}
	app.provider = provider

	ep := provider.Endpoints()
	app.logger.Info("identity provider resolved",
		"issuer", ep.Issuer,
		"authorization_endpoint", ep.AuthURL,
		"token_endpoint", ep.TokenURL,
		"jwks_uri", ep.JWKSURL,
	)

	if _, err := provider.SigningKeys(ctx); err != nil {
		app.logger.Warn("initial signing key fetch failed", "error", err)
	}
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	codec, err := service.NewCookieCodec([]byte(app.cfg.CookieSecret), app.cfg.CookieName)
	if err != nil {
		return fmt.Errorf("failed to initialize cookie codec: %w", err)
	}

	nativeExpiry := app.cfg.StoreDriver == StoreRedis

	app.authFlow = &service.AuthFlow{
		States: &service.StateService{
			Store:        app.db.LoginAttempts(),
			TTL:          app.cfg.StateTTL,
			SweepOnIssue: !nativeExpiry,
		},
		Sessions: &service.SessionService{
			Store: app.db.Sessions(),
			TTL:   app.cfg.SessionTTL,
		},
		Cookies:  codec,
		Provider: app.provider,
		Validator: jwtx.NewIDTokenValidator(app.provider, jwtx.ValidatorConfig{
			Issuer:    app.provider.Endpoints().Issuer,
			ClientID:  app.cfg.ClientID,
			ClockSkew: app.cfg.ClockSkew,
		}),
	}

	if !nativeExpiry {
		app.housekeepingService = service.NewHousekeepingService(
			app.db,
			app.logger,
			app.cfg.HousekeepingInterval,
		)
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.provider,
		BuildVersion,
		app.db,
		app.logger,
		httpx.RateLimitsFromEnv(),
		app.cfg.CORSAllowedOrigins,
	)

	router.AuthHandler = &httpapi.AuthHandler{
		Flow: app.authFlow,
		Cookie: httpapi.CookieConfig{
			Name:     app.cfg.CookieName,
			Domain:   app.cfg.CookieDomain,
			Secure:   app.cfg.CookieSecure,
			SameSite: httpapi.ParseSameSite(app.cfg.CookieSameSite),
			MaxAge:   app.cfg.SessionTTL,
		},
		FrontendURL: app.cfg.FrontendURL,
		FailureURL:  app.cfg.FrontendFailureURL,
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
