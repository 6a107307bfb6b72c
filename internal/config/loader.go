package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration in precedence order: defaults, then the TOML
// file at path (skipped when path is empty or the file does not exist),
// then POLYMCP_* environment variables. A .env file in the working
// directory seeds the environment first.
func Load(path string) (*Config, error) {
	// Missing .env files are fine; explicit config errors are not.
	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setStr("POLYMCP_API_BASE_URL", &cfg.API.BaseURL)
	setStr("POLYMCP_API_KEY", &cfg.API.APIKey)
	setInt("POLYMCP_API_TIMEOUT_SECS", &cfg.API.TimeoutSecs)

	setBool("POLYMCP_CACHE_ENABLED", &cfg.Cache.Enabled)
	setStr("POLYMCP_CACHE_BACKEND", &cfg.Cache.Backend)
	setInt("POLYMCP_CACHE_TTL_SECS", &cfg.Cache.TTLSecs)
	setInt("POLYMCP_CACHE_RESOURCE_TTL_SECS", &cfg.Cache.ResourceTTLSecs)
	setInt("POLYMCP_CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries)

	setStr("POLYMCP_REDIS_ADDR", &cfg.Redis.Addr)
	setStr("POLYMCP_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("POLYMCP_REDIS_DB", &cfg.Redis.DB)

	setInt("POLYMCP_RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	setInt("POLYMCP_RETRY_BASE_DELAY_MS", &cfg.Retry.BaseDelayMs)
	setInt("POLYMCP_RETRY_MAX_DELAY_MS", &cfg.Retry.MaxDelayMs)
	setFloat("POLYMCP_RETRY_JITTER_FRACTION", &cfg.Retry.JitterFraction)

	setInt("POLYMCP_RATELIMIT_MIN_INTERVAL_MS", &cfg.RateLimit.MinIntervalMs)

	setInt("POLYMCP_SERVER_MAX_WORKERS", &cfg.Server.MaxWorkers)
	setInt("POLYMCP_SERVER_MAX_INFLIGHT_FETCHES", &cfg.Server.MaxInflightFetches)
	setStr("POLYMCP_SERVER_METRICS_ADDR", &cfg.Server.MetricsAddr)

	setStr("POLYMCP_LOG_LEVEL", &cfg.Log.Level)
	setBool("POLYMCP_LOG_PRETTY", &cfg.Log.Pretty)
}

func setStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(key string, dst *float64) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
