// Package server initializes and runs the lexivault auth server.
// It builds the configured token store, wires the rotation engine into the
// HTTP and gRPC transports, runs the expired token sweeper and handles
// graceful shutdown.
package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server/config"
	"github.com/lexivault/lexivault/internal/server/httpapi"
	"github.com/lexivault/lexivault/internal/server/metrics"

	gs "github.com/lexivault/lexivault/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	metrics *metrics.Metrics
	core    *Core
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, c.LogFormat, c.LogLevel)
	m := metrics.New()

	core, err := NewCore(ctx, c, logger, m)
	if err != nil {
		return nil, err
	}

	return &App{config: c, logger: logger, metrics: m, core: core}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	router := httpapi.NewRouter(httpapi.Deps{
		Auth:     app.core.Auth,
		Accounts: app.core.Accounts,
		Cookies: httpapi.CookieConfig{
			Secure:   app.config.CookieSecure,
			SameSite: httpapi.ParseSameSite(app.config.CookieSameSite),
			Domain:   app.config.CookieDomain,
			MaxAge:   app.config.RefreshTokenTTL,
		},
		Health:  app.core.Repos.RefreshTokens(),
		Metrics: app.metrics,
		Logger:  app.logger,
	})

	s := httpapi.NewServer(app.config.HTTPAddr, router, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.core.Auth, app.core.Repos.RefreshTokens(), app.config.HealthProbeInterval)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "store_backend", app.config.StoreBackend)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.core.Sweeper.Run(ctx)
	}()

	wg.Wait()

	if err := app.core.Close(); err != nil {
		app.logger.Error(context.Background(), "closing storage", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
