package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
server:
  name: "push-1"

fcm:
  project_id: "demo-project"
  credentials_file: "/etc/pushry/sa.json"
  timeout: 5s

apns:
  enabled: true
  key_file: "/etc/pushry/AuthKey.p8"
  key_id: "KEY123"
  team_id: "TEAM123"
  bundle_id: "com.example.app"

dispatch:
  batch_size: 200
  workers: 8
  pace: 20ms
  route: "/offers"
  force_platform: android
  mode: sandbox
  sandbox_error_rate: 0.2

directory:
  path: "/tmp/dir.db"

api:
  listen_addr: ":9080"
  api_key: "test-api-key"

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Name != "push-1" {
		t.Errorf("Server.Name = %v, want push-1", cfg.Server.Name)
	}
	if cfg.FCM.ProjectID != "demo-project" || cfg.FCM.Timeout != 5*time.Second {
		t.Errorf("unexpected fcm config: %+v", cfg.FCM)
	}
	if !cfg.APNs.Enabled || cfg.APNs.BundleID != "com.example.app" {
		t.Errorf("unexpected apns config: %+v", cfg.APNs)
	}
	if cfg.Dispatch.BatchSize != 200 || cfg.Dispatch.Workers != 8 {
		t.Errorf("unexpected dispatch sizes: %+v", cfg.Dispatch)
	}
	if cfg.Dispatch.Pace != 20*time.Millisecond {
		t.Errorf("Dispatch.Pace = %v, want 20ms", cfg.Dispatch.Pace)
	}
	if !cfg.IsSandbox() {
		t.Error("IsSandbox() = false, want true")
	}
	if cfg.Dispatch.BundleID != "com.example.app" {
		t.Errorf("Dispatch.BundleID = %v, want apns bundle id", cfg.Dispatch.BundleID)
	}
	if cfg.API.APIKey != "test-api-key" {
		t.Errorf("API.APIKey = %v, want test-api-key", cfg.API.APIKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}

	d := cfg.DispatchDefaults()
	if d.BatchSize != 200 || d.MaxParallelWorkers != 8 || d.ForcePlatform != "android" || d.Route != "/offers" {
		t.Errorf("unexpected dispatch defaults: %+v", d)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "fcm:\n  project_id: demo\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Dispatch.BatchSize != 100 {
		t.Errorf("Dispatch.BatchSize = %v, want 100", cfg.Dispatch.BatchSize)
	}
	if cfg.Dispatch.Workers != 5 {
		t.Errorf("Dispatch.Workers = %v, want 5", cfg.Dispatch.Workers)
	}
	if cfg.Dispatch.Pace != 10*time.Millisecond {
		t.Errorf("Dispatch.Pace = %v, want 10ms", cfg.Dispatch.Pace)
	}
	if cfg.Dispatch.ClickAction != "FLUTTER_NOTIFICATION_CLICK" {
		t.Errorf("Dispatch.ClickAction = %v", cfg.Dispatch.ClickAction)
	}
	if cfg.Dispatch.Mode != ModeProduction {
		t.Errorf("Dispatch.Mode = %v, want production", cfg.Dispatch.Mode)
	}
	if cfg.FCM.Timeout != 10*time.Second {
		t.Errorf("FCM.Timeout = %v, want 10s", cfg.FCM.Timeout)
	}
	if cfg.API.ListenAddr != ":8080" {
		t.Errorf("API.ListenAddr = %v, want :8080", cfg.API.ListenAddr)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %v, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %v, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %v, want json", cfg.Logging.Format)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Config{}
		c.setDefaults()
		return c
	}

	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"batch size too small", func(c *Config) { c.Dispatch.BatchSize = 10 }, true},
		{"batch size too large", func(c *Config) { c.Dispatch.BatchSize = 1000 }, true},
		{"too many workers", func(c *Config) { c.Dispatch.Workers = 50 }, true},
		{"negative pace", func(c *Config) { c.Dispatch.Pace = -time.Second }, true},
		{"negative max rate", func(c *Config) { c.Dispatch.MaxRate = -1 }, true},
		{"max rate", func(c *Config) { c.Dispatch.MaxRate = 500 }, false},
		{"invalid platform", func(c *Config) { c.Dispatch.ForcePlatform = "web" }, true},
		{"invalid mode", func(c *Config) { c.Dispatch.Mode = "redirect" }, true},
		{"invalid error rate", func(c *Config) { c.Dispatch.SandboxErrorRate = 1.5 }, true},
		{"apns without key", func(c *Config) { c.APNs.Enabled = true }, true},
		{"both api keys", func(c *Config) { c.API.APIKey = "a"; c.API.APIKeyHash = "b" }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: yaml: content: ["))
	if err == nil {
		t.Error("Load() should return error for invalid YAML")
	}
}
