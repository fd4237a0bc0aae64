package core

import (
	"fmt"
	"strings"
	"time"
)

type BreakerConfig struct {
	EntityLimit   int `koanf:"entity_limit" mapstructure:"entity_limit"`
	TenantLimit   int `koanf:"tenant_limit" mapstructure:"tenant_limit"`
	WindowSeconds int `koanf:"window_seconds" mapstructure:"window_seconds"`
}

func (c BreakerConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type CacheConfig struct {
	TargetTTLSeconds int `koanf:"target_ttl_seconds" mapstructure:"target_ttl_seconds"`
}

func (c CacheConfig) TargetTTL() time.Duration {
	return time.Duration(c.TargetTTLSeconds) * time.Second
}

type DeliveryConfig struct {
	UserAgent      string `koanf:"user_agent" mapstructure:"user_agent"`
	TimeoutSeconds int    `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
	// HealthTimeoutSeconds bounds the OPTIONS health check, separately from deliveries.
	HealthTimeoutSeconds int `koanf:"health_timeout_seconds" mapstructure:"health_timeout_seconds"`
	// MaxRetries of 0 disables retries when set from a config file. A zero
	// runtime value means unset.
	MaxRetries     int   `koanf:"max_retries" mapstructure:"max_retries"`
	BackoffSeconds []int `koanf:"backoff_seconds" mapstructure:"backoff_seconds"`
}

func (c DeliveryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c DeliveryConfig) HealthTimeout() time.Duration {
	return time.Duration(c.HealthTimeoutSeconds) * time.Second
}

// Backoff returns the retry delay schedule, one entry per retry.
func (c DeliveryConfig) Backoff() []time.Duration {
	out := make([]time.Duration, 0, len(c.BackoffSeconds))
	for _, seconds := range c.BackoffSeconds {
		out = append(out, time.Duration(seconds)*time.Second)
	}
	return out
}

type QueueConfig struct {
	Workers int `koanf:"workers" mapstructure:"workers"`
	Buffer  int `koanf:"buffer" mapstructure:"buffer"`
}

// DatabaseConfig selects the webhook registry backend. An empty DSN runs without
// persistence and the caller must supply a TargetStore.
type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

// RedisConfig enables the shared breaker counters when URL is set.
type RedisConfig struct {
	URL       string `koanf:"url" mapstructure:"url"`
	KeyPrefix string `koanf:"key_prefix" mapstructure:"key_prefix"`
}

type HTTPConfig struct {
	Addr                string `koanf:"addr" mapstructure:"addr"`
	ShutdownTimeoutSecs int    `koanf:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`
}

func (c HTTPConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSecs) * time.Second
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Breaker     BreakerConfig  `koanf:"breaker" mapstructure:"breaker"`
	Cache       CacheConfig    `koanf:"cache" mapstructure:"cache"`
	Delivery    DeliveryConfig `koanf:"delivery" mapstructure:"delivery"`
	Queue       QueueConfig    `koanf:"queue" mapstructure:"queue"`
	Database    DatabaseConfig `koanf:"database" mapstructure:"database"`
	Redis       RedisConfig    `koanf:"redis" mapstructure:"redis"`
	HTTP        HTTPConfig     `koanf:"http" mapstructure:"http"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const DefaultUserAgent = "AgencySaaS-Webhook/1.0"

func DefaultConfig() Config {
	return Config{
		ServiceName: "leadhooks",
		Breaker: BreakerConfig{
			EntityLimit:   10,
			TenantLimit:   200,
			WindowSeconds: 60,
		},
		Cache: CacheConfig{
			TargetTTLSeconds: 60,
		},
		Delivery: DeliveryConfig{
			UserAgent:            DefaultUserAgent,
			TimeoutSeconds:       8,
			HealthTimeoutSeconds: 3,
			MaxRetries:           3,
			BackoffSeconds:       []int{5, 30, 120},
		},
		Queue: QueueConfig{
			Workers: 4,
			Buffer:  256,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
		},
		Redis: RedisConfig{
			KeyPrefix: "leadhooks:breaker",
		},
		HTTP: HTTPConfig{
			Addr:                ":8080",
			ShutdownTimeoutSecs: 10,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Breaker.EntityLimit <= 0 || c.Breaker.TenantLimit <= 0 {
		return fmt.Errorf("core: breaker limits must be positive")
	}
	if c.Breaker.WindowSeconds <= 0 {
		return fmt.Errorf("core: breaker window_seconds must be positive")
	}
	if c.Cache.TargetTTLSeconds < 0 {
		return fmt.Errorf("core: cache target_ttl_seconds must not be negative")
	}
	if strings.TrimSpace(c.Delivery.UserAgent) == "" {
		return fmt.Errorf("core: delivery user_agent is required")
	}
	if c.Delivery.TimeoutSeconds <= 0 {
		return fmt.Errorf("core: delivery timeout_seconds must be positive")
	}
	if c.Delivery.HealthTimeoutSeconds < 0 {
		return fmt.Errorf("core: delivery health_timeout_seconds must not be negative")
	}
	if c.Delivery.MaxRetries < 0 {
		return fmt.Errorf("core: delivery max_retries must not be negative")
	}
	for _, seconds := range c.Delivery.BackoffSeconds {
		if seconds < 0 {
			return fmt.Errorf("core: delivery backoff_seconds entries must not be negative")
		}
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("core: queue workers must be positive")
	}
	switch strings.TrimSpace(c.Database.Driver) {
	case "", DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("core: database driver %q is not supported", c.Database.Driver)
	}
	if c.HTTP.ShutdownTimeoutSecs < 0 {
		return fmt.Errorf("core: http shutdown_timeout_seconds must not be negative")
	}
	return nil
}
