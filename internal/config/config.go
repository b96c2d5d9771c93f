// Package config defines the pipeline's complete runtime configuration
// surface: a nested-struct-plus-tag YAML layout where every subsystem
// (redis, exchange, monitoring, reconnect...) gets its own section.
package config

import (
	"fmt"
	"time"
)

// Config is the complete application configuration.
type Config struct {
	Identity   IdentityConfig   `yaml:"identity"`
	Redis      RedisConfig      `yaml:"redis"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Symbols    []string         `yaml:"symbols"`
	Timeframes TimeframesConfig `yaml:"timeframes"`
	Store      StoreConfig      `yaml:"store"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Chart      ChartConfig      `yaml:"chart"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Reconnect  ReconnectConfig  `yaml:"reconnect"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// IdentityConfig names the (user, exchange) scope this instance serves and
// the exchange instance ID its lease is registered under.
type IdentityConfig struct {
	User       string `yaml:"user"`
	ExchangeID string `yaml:"exchange_id"`
	IP         string `yaml:"ip"`
}

// RedisConfig holds the connection parameters internal/cache/rediscache
// dials with.
type RedisConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
}

// ExchangeConfig names the live market-data venue this instance connects to.
type ExchangeConfig struct {
	Name         string `yaml:"name"` // e.g. "binance" — looked up by cmd/livermore's buildAdapter
	WebSocketURL string `yaml:"websocket_url,omitempty"`
}

// TimeframesConfig selects the base timeframe the scheduler recomputes on
// every candle close, and how higher timeframes are obtained once their
// boundary advances. The aggregator builds 1-minute bars from ticks
// whatever Base is.
type TimeframesConfig struct {
	Base                  string `yaml:"base"` // "1m" or "5m"
	HigherTimeframeSource string `yaml:"higher_timeframe_source"` // "cache-read" | "aggregate"
}

// StoreConfig selects the relational persistence backend for alerts and
// settings.
type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// NotifierConfig selects the alert-delivery backend.
type NotifierConfig struct {
	WebhookURL string `yaml:"webhook_url,omitempty"` // empty selects the log notifier
}

// ChartConfig selects the chart-rendering backend for alert emission. Only
// the disabled renderer ships with this pipeline; this section exists so a
// future renderer has a configuration home.
type ChartConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MonitoringConfig configures the Prometheus metrics server.
type MonitoringConfig struct {
	MetricsAddr string `yaml:"metrics_addr"` // e.g. ":9090"
}

// ReconnectConfig tunes the exchange connection's supervised restart loop.
type ReconnectConfig struct {
	InitialBackoff string  `yaml:"initial_backoff"` // parsed with time.ParseDuration
	MaxBackoff     string  `yaml:"max_backoff"`
	BackoffFactor  float64 `yaml:"backoff_factor"`
}

// LoggingConfig selects the zap logger's level and output format.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ParseDuration parses s with time.ParseDuration, returning fallback on an
// empty or unparseable string.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate checks the fields every other package's constructor assumes are
// present.
func (c *Config) Validate() error {
	if c.Identity.ExchangeID == "" {
		return missingFieldError("identity.exchange_id")
	}
	if c.Exchange.Name == "" {
		return missingFieldError("exchange.name")
	}
	if len(c.Symbols) == 0 {
		return missingFieldError("symbols")
	}
	if c.Timeframes.Base == "" {
		return missingFieldError("timeframes.base")
	}
	if c.Timeframes.Base != "1m" && c.Timeframes.Base != "5m" {
		return fmt.Errorf("config: timeframes.base must be \"1m\" or \"5m\", got %q", c.Timeframes.Base)
	}
	return nil
}

type missingFieldError string

func (e missingFieldError) Error() string { return "config: missing required field " + string(e) }
