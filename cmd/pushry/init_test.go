package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foxzi/pushry/internal/config"
)

func TestGenerateRandomString(t *testing.T) {
	lengths := []int{8, 16, 32, 64}

	for _, length := range lengths {
		result := generateRandomString(length)
		if len(result) != length {
			t.Errorf("generateRandomString(%d) returned string of length %d", length, len(result))
		}
	}

	s1 := generateRandomString(32)
	s2 := generateRandomString(32)
	if s1 == s2 {
		t.Error("generateRandomString should generate unique strings")
	}
}

func TestGenerateConfig(t *testing.T) {
	initDataDir = "/var/lib/pushry"
	initAPIKey = "testapikey"
	initMode = "production"
	initProjectID = "my-app"
	initCredentials = "/etc/pushry/sa.json"

	cfg := generateConfig()

	checks := []string{
		`project_id: "my-app"`,
		`credentials_file: "/etc/pushry/sa.json"`,
		`api_key: "testapikey"`,
		`mode: production`,
		`path: "/var/lib/pushry/directory.db"`,
	}

	for _, check := range checks {
		if !strings.Contains(cfg, check) {
			t.Errorf("Generated config missing: %s", check)
		}
	}
}

func TestGenerateConfigEnvCredentials(t *testing.T) {
	initDataDir = "/var/lib/pushry"
	initAPIKey = "key"
	initMode = "sandbox"
	initProjectID = ""
	initCredentials = ""

	cfg := generateConfig()

	if strings.Contains(cfg, "\n  credentials_file:") {
		t.Error("credentials_file should stay commented out when using environment variables")
	}
	if !strings.Contains(cfg, "mode: sandbox") {
		t.Error("Generated config should use sandbox mode")
	}
}

func TestGeneratedConfigLoads(t *testing.T) {
	dir := t.TempDir()
	initDataDir = dir
	initAPIKey = "key"
	initMode = "sandbox"
	initProjectID = ""
	initCredentials = ""

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(generateConfig()), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if !cfg.IsSandbox() {
		t.Error("expected sandbox mode")
	}
	if cfg.Dispatch.BatchSize != 100 || cfg.Dispatch.Workers != 5 {
		t.Errorf("dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Storage.SandboxPath != filepath.Join(dir, "sandbox.db") {
		t.Errorf("SandboxPath = %s", cfg.Storage.SandboxPath)
	}
}
