package agent

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

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zwj1kor/Agentic-sso/pkg/slogx"
)

var BuildVersion = "v0.1.0"

// Application runs the agent HTTP server.
type Application struct {
	cfg    Config
	logger *slog.Logger
	agent  *Agent
	router *Router
	server *http.Server
}

func NewApplication(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := slogx.New(slogx.Config{
		Service: "sso-agent",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	a := New(cfg.BackendBaseURL, cfg.BackendTimeout)
	router := NewRouter(a, logger, cfg.CORSAllowedOrigins)

	return &Application{
		cfg:    cfg,
		logger: logger,
		agent:  a,
		router: router,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 3 * time.Second,
		},
	}, nil
}

func (app *Application) Handler() http.Handler { return app.router }

// Run serves until SIGINT or SIGTERM.
func (app *Application) Run() error {
	app.logger.Info("sso agent starting", "port", app.cfg.Port, "backend_url", app.cfg.BackendBaseURL)

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
		return app.Shutdown()
	}
	return nil
}

func (app *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		return app.server.Close()
	}
	app.logger.Info("sso agent stopped")
	return nil
}

// RunMCPStdio serves the MCP tools over stdin and stdout until ctx is done.
// Logs go to stderr so they never mix with protocol frames.
func RunMCPStdio(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slogx.New(slogx.Config{
		Service: "sso-mcp",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  os.Stderr,
	})
	logger.Info("sso mcp server starting", "transport", "stdio", "backend_url", cfg.BackendBaseURL)

	server := NewMCPServer(New(cfg.BackendBaseURL, cfg.BackendTimeout), logger, BuildVersion)
	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server failed: %w", err)
	}
	logger.Info("sso mcp server stopped")
	return nil
}
