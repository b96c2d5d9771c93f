package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader reads a YAML config file from disk, grounded directly on
// ConfigLoader.LoadConfig's read-then-unmarshal-then-default shape.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

func (l *Loader) LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Timeframes.Base == "" {
		cfg.Timeframes.Base = "1m"
	}
	if cfg.Timeframes.HigherTimeframeSource == "" {
		cfg.Timeframes.HigherTimeframeSource = "aggregate"
	}
	if cfg.Monitoring.MetricsAddr == "" {
		cfg.Monitoring.MetricsAddr = ":9090"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetRedisAddress formats the host:port pair go-redis expects.
func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
