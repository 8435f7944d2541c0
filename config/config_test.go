package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvHost, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Web.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Web.Port)
	}
	if cfg.Discovery.Timeout != 3*time.Second {
		t.Errorf("discovery timeout = %v, want 3s", cfg.Discovery.Timeout)
	}
	if cfg.Poller.Interval != 5*time.Second {
		t.Errorf("poller interval = %v, want 5s", cfg.Poller.Interval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Store.Path == "" {
		t.Error("store path should have a default")
	}
}

func TestLoadOverlay(t *testing.T) {
	t.Setenv(EnvHost, "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `device:
  host: 192.168.1.50
web:
  port: 9000
poller:
  interval: 10s
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Device.Host != "192.168.1.50" {
		t.Errorf("host = %q", cfg.Device.Host)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("port = %d", cfg.Web.Port)
	}
	if cfg.Poller.Interval != 10*time.Second {
		t.Errorf("interval = %v", cfg.Poller.Interval)
	}
	// Untouched sections keep their defaults.
	if cfg.Web.Host != "0.0.0.0" {
		t.Errorf("web host = %q, want default", cfg.Web.Host)
	}
	if cfg.Discovery.Timeout != 3*time.Second {
		t.Errorf("discovery timeout = %v, want default", cfg.Discovery.Timeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(EnvHost, "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("a missing config file should not be an error, got %v", err)
	}
	if cfg.Web.Port != 8000 {
		t.Errorf("port = %d, want defaults", cfg.Web.Port)
	}
}

func TestLoadEnvHostFallback(t *testing.T) {
	t.Setenv(EnvHost, "192.168.1.99")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device.Host != "192.168.1.99" {
		t.Errorf("host = %q, want the env fallback", cfg.Device.Host)
	}
}
