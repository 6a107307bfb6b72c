// Package config loads server configuration from a TOML file with
// environment variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/predictgate/polymarket-mcp/pkg/polymarket"
)

// Config is the full server configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Cache     CacheConfig     `toml:"cache"`
	Redis     RedisConfig     `toml:"redis"`
	Retry     RetryConfig     `toml:"retry"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
}

// APIConfig configures the upstream Gamma API client.
type APIConfig struct {
	BaseURL     string `toml:"base_url"`
	APIKey      string `toml:"api_key"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

// CacheConfig configures response caching.
type CacheConfig struct {
	Enabled         bool   `toml:"enabled"`
	Backend         string `toml:"backend"` // "memory" or "redis"
	TTLSecs         int    `toml:"ttl_secs"`
	ResourceTTLSecs int    `toml:"resource_ttl_secs"`
	MaxEntries      int    `toml:"max_entries"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// RetryConfig configures upstream retry behavior.
type RetryConfig struct {
	MaxAttempts    int     `toml:"max_attempts"`
	BaseDelayMs    int     `toml:"base_delay_ms"`
	MaxDelayMs     int     `toml:"max_delay_ms"`
	JitterFraction float64 `toml:"jitter_fraction"`
}

// RateLimitConfig configures local pacing of upstream calls.
type RateLimitConfig struct {
	MinIntervalMs int `toml:"min_interval_ms"`
}

// ServerConfig configures the protocol server.
type ServerConfig struct {
	MaxWorkers         int    `toml:"max_workers"`
	MaxInflightFetches int    `toml:"max_inflight_fetches"`
	MetricsAddr        string `toml:"metrics_addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Defaults returns the configuration used when no file or overrides are
// present.
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:     polymarket.DefaultBaseURL,
			TimeoutSecs: 10,
		},
		Cache: CacheConfig{
			Enabled:         true,
			Backend:         "memory",
			TTLSecs:         60,
			ResourceTTLSecs: 300,
			MaxEntries:      1024,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BaseDelayMs:    500,
			MaxDelayMs:     10000,
			JitterFraction: 0.2,
		},
		RateLimit: RateLimitConfig{
			MinIntervalMs: 0,
		},
		Server: ServerConfig{
			MaxWorkers:         4,
			MaxInflightFetches: 8,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if c.API.TimeoutSecs <= 0 {
		return fmt.Errorf("api.timeout_secs must be positive")
	}
	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case "memory":
			if c.Cache.MaxEntries <= 0 {
				return fmt.Errorf("cache.max_entries must be positive for the memory backend")
			}
		case "redis":
			if c.Redis.Addr == "" {
				return fmt.Errorf("redis.addr must not be empty for the redis backend")
			}
		default:
			return fmt.Errorf("cache.backend must be \"memory\" or \"redis\", got %q", c.Cache.Backend)
		}
		if c.Cache.TTLSecs <= 0 {
			return fmt.Errorf("cache.ttl_secs must be positive when caching is enabled")
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		return fmt.Errorf("retry.jitter_fraction must be in [0, 1]")
	}
	if c.Server.MaxInflightFetches < 1 {
		return fmt.Errorf("server.max_inflight_fetches must be at least 1")
	}
	return nil
}

// ClientConfig converts the loaded configuration into the market client's
// configuration.
func (c *Config) ClientConfig() polymarket.Config {
	cfg := polymarket.DefaultConfig()
	cfg.BaseURL = c.API.BaseURL
	cfg.APIKey = c.API.APIKey
	cfg.RequestTimeout = time.Duration(c.API.TimeoutSecs) * time.Second
	cfg.CacheEnabled = c.Cache.Enabled
	cfg.CacheTTL = time.Duration(c.Cache.TTLSecs) * time.Second
	cfg.MaxInflight = c.Server.MaxInflightFetches
	cfg.Retry = polymarket.RetryPolicy{
		MaxAttempts:    c.Retry.MaxAttempts,
		BaseDelay:      time.Duration(c.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:       time.Duration(c.Retry.MaxDelayMs) * time.Millisecond,
		JitterFraction: c.Retry.JitterFraction,
	}
	return cfg
}

// ResourceTTL is the freshness window for resource reads.
func (c *Config) ResourceTTL() time.Duration {
	return time.Duration(c.Cache.ResourceTTLSecs) * time.Second
}

// MinInterval is the pacing interval between upstream calls.
func (c *Config) MinInterval() time.Duration {
	return time.Duration(c.RateLimit.MinIntervalMs) * time.Millisecond
}
