package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/pushry/internal/apns"
	"github.com/foxzi/pushry/internal/campaign"
	"github.com/foxzi/pushry/internal/cohort"
	"github.com/foxzi/pushry/internal/config"
	"github.com/foxzi/pushry/internal/directory"
	"github.com/foxzi/pushry/internal/fcm"
	"github.com/foxzi/pushry/internal/metrics"
	"github.com/foxzi/pushry/internal/push"
	"github.com/foxzi/pushry/internal/recipients"
	"github.com/foxzi/pushry/internal/sandbox"
)

// Core holds the components shared by the server and one-shot CLI commands
type Core struct {
	Config  *config.Config
	Logger  *slog.Logger
	DB      *directory.DB
	Agents  *directory.Repository
	Cohorts *cohort.Store
	History *campaign.History
	Runner  *campaign.Runner
	Sandbox *sandbox.Storage // nil in production mode

	sandboxDB *bolt.DB
}

// NewCore opens the stores and builds the send pipeline. m may be nil.
func NewCore(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Core, error) {
	db, err := OpenDirectory(cfg)
	if err != nil {
		return nil, err
	}

	c := &Core{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Agents:  directory.NewRepository(db.DB),
		Cohorts: cohort.NewStore(cfg.Storage.CohortsFile),
		History: campaign.NewHistory(cfg.Storage.CampaignsFile),
	}

	transport, err := c.newTransport(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	var (
		sendObserver push.Observer
		runObserver  campaign.Observer
	)
	if m != nil {
		sendObserver = m
		runObserver = m
	}

	sender := push.NewSender(transport, logger.With("component", "sender"))
	if cfg.Dispatch.MaxRate > 0 {
		sender.SetRateLimit(cfg.Dispatch.MaxRate)
	}
	coordinator := push.NewCoordinator(sender, sendObserver, logger.With("component", "coordinator"))
	resolver := recipients.NewResolver(c.Agents, c.Cohorts, logger.With("component", "resolver"))

	c.Runner = campaign.NewRunner(campaign.Options{
		Resolver:    resolver,
		Sender:      sender,
		Coordinator: coordinator,
		History:     c.History,
		Defaults:    cfg.DispatchDefaults(),
		Mode:        cfg.Dispatch.Mode,
		Observer:    runObserver,
		Logger:      logger.With("component", "runner"),
	})

	return c, nil
}

// newTransport picks the sandbox capture or the real FCM/APNs transports
func (c *Core) newTransport(ctx context.Context) (push.Transport, error) {
	cfg := c.Config

	if cfg.IsSandbox() {
		db, storage, err := OpenSandbox(cfg)
		if err != nil {
			return nil, err
		}
		c.sandboxDB = db
		c.Sandbox = storage

		s := sandbox.NewSender(storage, c.Logger.With("component", "sandbox_sender"))
		if cfg.Dispatch.SandboxErrorRate > 0 {
			s.SetErrorSimulation(true, cfg.Dispatch.SandboxErrorRate)
		}
		c.Logger.Info("sandbox mode enabled, messages are captured", "path", cfg.Storage.SandboxPath)
		return s, nil
	}

	creds, err := fcm.LoadCredentials(cfg.FCM.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load fcm credentials: %w", err)
	}

	fcmClient, err := fcm.New(ctx, fcm.Config{
		ProjectID: cfg.FCM.ProjectID,
		Endpoint:  cfg.FCM.Endpoint,
		Timeout:   cfg.FCM.Timeout,
	}, creds, c.Logger.With("component", "fcm"))
	if err != nil {
		return nil, fmt.Errorf("failed to create fcm client: %w", err)
	}

	if !cfg.APNs.Enabled {
		return fcmClient, nil
	}

	apnsClient, err := apns.New(apns.Config{
		KeyFile:    cfg.APNs.KeyFile,
		KeyID:      cfg.APNs.KeyID,
		TeamID:     cfg.APNs.TeamID,
		BundleID:   cfg.APNs.BundleID,
		Production: cfg.APNs.Production,
	}, c.Logger.With("component", "apns"))
	if err != nil {
		return nil, fmt.Errorf("failed to create apns client: %w", err)
	}
	c.Logger.Info("direct APNs enabled", "bundle_id", cfg.APNs.BundleID, "production", cfg.APNs.Production)

	return &push.Router{Default: fcmClient, APNs: apnsClient}, nil
}

// DataFiles lists the files whose size is reported as storage usage
func (c *Core) DataFiles() []string {
	files := []string{
		c.Config.Directory.Path,
		c.Config.Storage.CohortsFile,
		c.Config.Storage.CampaignsFile,
	}
	if c.Sandbox != nil {
		files = append(files, c.Config.Storage.SandboxPath)
	}
	return files
}

// Close releases the directory and sandbox databases
func (c *Core) Close() error {
	var errs []error
	if c.sandboxDB != nil {
		if err := c.sandboxDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close sandbox database: %w", err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close directory: %w", err))
		}
	}
	return errors.Join(errs...)
}

// OpenDirectory opens and migrates the agent directory
func OpenDirectory(cfg *config.Config) (*directory.DB, error) {
	db, err := directory.Open(cfg.Directory.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate directory: %w", err)
	}
	return db, nil
}

// OpenSandbox opens the bbolt database holding captured messages
func OpenSandbox(cfg *config.Config) (*bolt.DB, *sandbox.Storage, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SandboxPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create sandbox directory: %w", err)
	}

	db, err := bolt.Open(cfg.Storage.SandboxPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sandbox database: %w", err)
	}

	storage, err := sandbox.NewStorage(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create sandbox storage: %w", err)
	}
	return db, storage, nil
}

// NewLogger creates a logger based on configuration
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
