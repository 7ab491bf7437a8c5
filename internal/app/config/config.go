package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/avetra/sensorlink/internal/adapters/socket"
	"github.com/avetra/sensorlink/internal/adapters/wireless"
	"github.com/avetra/sensorlink/internal/app/health"
)

type Config struct {
	Policy   PolicyConfig    `yaml:"policy"`
	Socket   socket.Config   `yaml:"socket"`
	Wireless wireless.Config `yaml:"wireless"`
	Health   health.Config   `yaml:"health"`
	Storage  StorageConfig   `yaml:"storage"`
	Archive  ArchiveConfig   `yaml:"archive"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

// PolicyConfig bounds the live session.
type PolicyConfig struct {
	BufferCapacity int `yaml:"buffer_capacity"`
	// AutosaveEvery persists the session each time this many readings
	// have accumulated; zero disables autosave.
	AutosaveEvery int `yaml:"autosave_every"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// ArchiveConfig enables the optional SQL mirror of saved batches. Empty
// conn_string leaves archiving off.
type ArchiveConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Policy.BufferCapacity == 0 {
		c.Policy.BufferCapacity = 5_000
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "./data/sessions"
	}
	if c.Archive.Table == "" {
		c.Archive.Table = "readings"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}

	c.Socket.ApplyDefaults()
	c.Wireless.ApplyDefaults()
	c.Health.ApplyDefaults()
}

func (c *Config) Validate() error {
	if c.Policy.BufferCapacity < 0 {
		return fmt.Errorf("policy.buffer_capacity must not be negative")
	}
	if c.Policy.AutosaveEvery < 0 {
		return fmt.Errorf("policy.autosave_every must not be negative")
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required")
	}
	if c.Health.Interval < time.Second {
		return fmt.Errorf("health.interval below 1s would hammer the device with probes")
	}
	return nil
}
