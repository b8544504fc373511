package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/pushry/internal/campaign"
	"github.com/foxzi/pushry/internal/cohort"
	"github.com/foxzi/pushry/internal/config"
	"github.com/foxzi/pushry/internal/directory"
	"github.com/foxzi/pushry/internal/ipfilter"
	"github.com/foxzi/pushry/internal/metrics"
	"github.com/foxzi/pushry/internal/sandbox"
)

// AgentStore is the read side of the agent directory
type AgentStore interface {
	Get(ctx context.Context, id string) (*directory.Agent, error)
	List(ctx context.Context, filter directory.Filter) ([]directory.Agent, int, error)
}

// Options holds the dependencies of the API server
type Options struct {
	Runner  *campaign.Runner
	History *campaign.History
	Cohorts *cohort.Store
	Agents  AgentStore
	Sandbox *sandbox.Storage // nil outside sandbox mode
	Mode    string
	Version string
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	opts       Options
	runs       *runRegistry
	filter     *ipfilter.Filter
	config     *config.APIConfig
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(opts Options, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		opts:      opts,
		runs:      newRunRegistry(opts.Runner, logger),
		filter:    ipfilter.New(cfg.AllowedIPs, logger),
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}

	if s.filter.Enabled() {
		logger.Info("API IP filtering enabled", "allowed_networks", s.filter.Count())
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.filter.Middleware)
		r.Use(s.authMiddleware)

		r.Post("/send", s.handleSend)
		r.Post("/preview", s.handlePreview)
		r.Post("/test", s.handleTest)

		r.Get("/runs", s.handleRunsList)
		r.Get("/runs/{id}", s.handleRunGet)
		r.Delete("/runs/{id}", s.handleRunCancel)

		r.Get("/cohorts", s.handleCohortsList)
		r.Post("/cohorts", s.handleCohortsCreate)
		r.Get("/cohorts/{name}", s.handleCohortsGet)
		r.Put("/cohorts/{name}", s.handleCohortsUpdate)
		r.Delete("/cohorts/{name}", s.handleCohortsDelete)

		r.Get("/campaigns", s.handleCampaignsList)
		r.Get("/campaigns/{id}", s.handleCampaignsGet)

		r.Get("/agents", s.handleAgentsList)
		r.Get("/agents/{id}", s.handleAgentsGet)

		if s.opts.Sandbox != nil {
			newSandboxHandler(s.opts.Sandbox, s.logger).RegisterRoutes(r)
		}
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ActiveRuns reports the number of runs still sending
func (s *Server) ActiveRuns() int {
	return s.runs.active()
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels running sends and waits for
// their in-flight batches to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if werr := s.runs.shutdown(ctx); werr != nil && err == nil {
		err = werr
	}
	return err
}
