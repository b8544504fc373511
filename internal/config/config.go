package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foxzi/pushry/internal/push"
)

// Dispatch modes
const (
	ModeProduction = "production"
	ModeSandbox    = "sandbox"
)

// Config is the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	FCM       FCMConfig       `yaml:"fcm"`
	APNs      APNsConfig      `yaml:"apns"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Directory DirectoryConfig `yaml:"directory"`
	Storage   StorageConfig   `yaml:"storage"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains instance-wide settings
type ServerConfig struct {
	Name string `yaml:"name"` // Instance name used in logs
}

// FCMConfig contains Firebase Cloud Messaging settings
type FCMConfig struct {
	ProjectID       string        `yaml:"project_id"`       // Default: project of the service account
	CredentialsFile string        `yaml:"credentials_file"` // Empty = FIREBASE_* environment variables
	Endpoint        string        `yaml:"endpoint"`         // Default: https://fcm.googleapis.com
	Timeout         time.Duration `yaml:"timeout"`          // HTTP timeout per send (default: 10s)
}

// APNsConfig contains direct APNs settings for raw device tokens
type APNsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	KeyFile    string `yaml:"key_file"` // .p8 signing key
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	BundleID   string `yaml:"bundle_id"`
	Production bool   `yaml:"production"`
}

// DispatchConfig contains send engine defaults
type DispatchConfig struct {
	BatchSize        int           `yaml:"batch_size"`         // 50..500 (default: 100)
	Workers          int           `yaml:"workers"`            // 1..20 (default: 5)
	Pace             time.Duration `yaml:"pace"`               // Delay after each send in a batch (default: 10ms)
	MaxRate          float64       `yaml:"max_rate"`           // Sends per second across all workers, 0 = unlimited
	ClickAction      string        `yaml:"click_action"`       // Default: FLUTTER_NOTIFICATION_CLICK
	Route            string        `yaml:"route"`              //
	Screen           string        `yaml:"screen"`             //
	ForcePlatform    string        `yaml:"force_platform"`     // auto, android, ios
	BundleID         string        `yaml:"bundle_id"`          // apns-topic header for iOS payloads
	Mode             string        `yaml:"mode"`               // production, sandbox
	SandboxErrorRate float64       `yaml:"sandbox_error_rate"` // 0 disables error simulation
}

// DirectoryConfig contains agent directory settings
type DirectoryConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig contains local persistence settings
type StorageConfig struct {
	CohortsFile   string `yaml:"cohorts_file"`
	CampaignsFile string `yaml:"campaigns_file"`
	SandboxPath   string `yaml:"sandbox_path"` // bbolt database for captured messages
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`
	APIKeyHash     string        `yaml:"api_key_hash"`     // bcrypt hash, alternative to api_key
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 30s)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
	AllowedIPs     []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access API (empty = allow all)
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // Default: :9090
	Path       string   `yaml:"path"`        // Default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"` // IP addresses/CIDRs allowed to access metrics
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		hostname, _ := os.Hostname()
		c.Server.Name = hostname
	}

	if c.FCM.Timeout == 0 {
		c.FCM.Timeout = 10 * time.Second
	}

	if c.Dispatch.BatchSize == 0 {
		c.Dispatch.BatchSize = 100
	}
	if c.Dispatch.Workers == 0 {
		c.Dispatch.Workers = 5
	}
	if c.Dispatch.Pace == 0 {
		c.Dispatch.Pace = push.DefaultPace
	}
	if c.Dispatch.ClickAction == "" {
		c.Dispatch.ClickAction = "FLUTTER_NOTIFICATION_CLICK"
	}
	if c.Dispatch.ForcePlatform == "" {
		c.Dispatch.ForcePlatform = push.PlatformAuto
	}
	if c.Dispatch.BundleID == "" {
		c.Dispatch.BundleID = c.APNs.BundleID
	}
	if c.Dispatch.Mode == "" {
		c.Dispatch.Mode = ModeProduction
	}

	if c.Directory.Path == "" {
		c.Directory.Path = "/var/lib/pushry/directory.db"
	}

	if c.Storage.CohortsFile == "" {
		c.Storage.CohortsFile = "/var/lib/pushry/cohorts.json"
	}
	if c.Storage.CampaignsFile == "" {
		c.Storage.CampaignsFile = "/var/lib/pushry/campaigns.json"
	}
	if c.Storage.SandboxPath == "" {
		c.Storage.SandboxPath = "/var/lib/pushry/sandbox.db"
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.DispatchDefaults().ValidateRange(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if c.Dispatch.Pace < 0 {
		return fmt.Errorf("dispatch.pace must not be negative")
	}
	if c.Dispatch.MaxRate < 0 {
		return fmt.Errorf("dispatch.max_rate must not be negative")
	}

	switch c.Dispatch.Mode {
	case ModeProduction, ModeSandbox:
	default:
		return fmt.Errorf("invalid dispatch.mode: %s (must be production or sandbox)", c.Dispatch.Mode)
	}

	if c.Dispatch.SandboxErrorRate < 0 || c.Dispatch.SandboxErrorRate > 1 {
		return fmt.Errorf("dispatch.sandbox_error_rate must be between 0 and 1")
	}

	if c.APNs.Enabled {
		if c.APNs.KeyFile == "" || c.APNs.KeyID == "" || c.APNs.TeamID == "" {
			return fmt.Errorf("apns.key_file, apns.key_id and apns.team_id are required when apns is enabled")
		}
		if c.APNs.BundleID == "" {
			return fmt.Errorf("apns.bundle_id is required when apns is enabled")
		}
	}

	if c.API.APIKey != "" && c.API.APIKeyHash != "" {
		return fmt.Errorf("api.api_key and api.api_key_hash are mutually exclusive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// IsSandbox reports whether messages are captured instead of sent
func (c *Config) IsSandbox() bool {
	return c.Dispatch.Mode == ModeSandbox
}

// DispatchDefaults converts the dispatch section into engine defaults
func (c *Config) DispatchDefaults() push.DispatchConfig {
	return push.DispatchConfig{
		BatchSize:          c.Dispatch.BatchSize,
		MaxParallelWorkers: c.Dispatch.Workers,
		ClickAction:        c.Dispatch.ClickAction,
		Route:              c.Dispatch.Route,
		Screen:             c.Dispatch.Screen,
		ForcePlatform:      c.Dispatch.ForcePlatform,
		BundleID:           c.Dispatch.BundleID,
		Pace:               c.Dispatch.Pace,
	}
}
