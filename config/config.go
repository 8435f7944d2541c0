// Package config loads the YAML configuration shared by the MCP server
// and the web bridge. Every field has a working default so both binaries
// run with no config file at all.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvHost is the environment variable consulted when no device host is
// configured or passed explicitly.
const EnvHost = "STREAMMAGIC_HOST"

type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Web       WebConfig       `yaml:"web"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Poller    PollerConfig    `yaml:"poller"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type DeviceConfig struct {
	// Host is the IP address of the StreamMagic device. Empty means
	// "resolve per call": explicit tool argument, then STREAMMAGIC_HOST.
	Host string `yaml:"host"`
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DiscoveryConfig struct {
	// Timeout bounds an SSDP scan. Also sent as the M-SEARCH MX value.
	Timeout time.Duration `yaml:"timeout"`
}

type PollerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads the config file at path, overlaying it on the defaults.
// A missing file (or empty path) yields the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Device: DeviceConfig{
			Host: "",
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Discovery: DiscoveryConfig{
			Timeout: 3 * time.Second,
		},
		Poller: PollerConfig{
			Interval: 5 * time.Second,
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.Device.Host == "" {
		cfg.Device.Host = os.Getenv(EnvHost)
	}

	return cfg, nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "streammagic", "session.db")
	}
	return filepath.Join(home, ".streammagic", "session.db")
}
