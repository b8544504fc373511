package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/pushry/internal/api"
	"github.com/foxzi/pushry/internal/config"
	"github.com/foxzi/pushry/internal/metrics"
)

// App is the long-running API service
type App struct {
	config        *config.Config
	core          *Core
	apiServer     *api.Server
	metricsServer *metrics.Server
	collector     *metrics.Collector
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config, version string) (*App, error) {
	logger := NewLogger(cfg.Logging)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metrics.SetGlobal(m)
	}

	core, err := NewCore(context.Background(), cfg, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create core: %w", err)
	}

	apiServer := api.NewServer(api.Options{
		Runner:  core.Runner,
		History: core.History,
		Cohorts: core.Cohorts,
		Agents:  core.Agents,
		Sandbox: core.Sandbox,
		Mode:    cfg.Dispatch.Mode,
		Version: version,
	}, &cfg.API, logger.With("component", "api"))

	a := &App{
		config:    cfg,
		core:      core,
		apiServer: apiServer,
		logger:    logger,
	}

	if m != nil {
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
		a.collector = metrics.NewCollector(m, apiServer, core.DataFiles(), 0)
		logger.Info("metrics enabled", "addr", cfg.Metrics.ListenAddr, "path", cfg.Metrics.Path)
	}

	return a, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting pushry",
		"name", a.config.Server.Name,
		"mode", a.config.Dispatch.Mode,
		"api_addr", a.config.API.ListenAddr,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		a.collector.Start(ctx)
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops the servers, lets running sends drain their in-flight
// batches and closes storage
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		a.collector.Stop()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := a.core.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}
