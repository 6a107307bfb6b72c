// Command polymarket-mcp serves Polymarket prediction market data to AI
// assistants over a line-oriented JSON-RPC protocol on stdin/stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/predictgate/polymarket-mcp/internal/config"
	"github.com/predictgate/polymarket-mcp/pkg/cache"
	"github.com/predictgate/polymarket-mcp/pkg/logging"
	"github.com/predictgate/polymarket-mcp/pkg/mcp"
	"github.com/predictgate/polymarket-mcp/pkg/metrics"
	"github.com/predictgate/polymarket-mcp/pkg/polymarket"
	"github.com/predictgate/polymarket-mcp/pkg/ratelimit"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "polymarket-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// stdout carries the protocol, so all logging goes to stderr.
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.MinInterval(), logging.NewLogger("ratelimit"))

	client, err := polymarket.New(cfg.ClientConfig(), store, limiter, logging.NewLogger("market-client"))
	if err != nil {
		return fmt.Errorf("creating market client: %w", err)
	}

	// Resource reads share the backend but keep their own, longer window.
	var resourceStore cache.Store
	if cfg.Cache.Enabled {
		resourceStore = store
	}
	resources := mcp.NewResourceReader(client, resourceStore, cfg.ResourceTTL(), logging.NewLogger("resources"))

	router := mcp.NewRouter(client, resources, mcp.ServerInfo{
		Name:    "polymarket-mcp",
		Version: version,
	}, logging.NewLogger("router"))

	server := mcp.NewServer(router, os.Stdin, os.Stdout, cfg.Server.MaxWorkers, logging.NewLogger("server"))

	if cfg.Server.MetricsAddr != "" {
		go func() {
			err := metrics.Serve(ctx, cfg.Server.MetricsAddr, logging.NewLogger("metrics"))
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics endpoint failed")
			}
		}()
	}

	logger.Info().
		Str("version", version).
		Str("base_url", cfg.API.BaseURL).
		Str("cache_backend", cacheBackend(cfg)).
		Msg("Starting polymarket-mcp")

	return server.Serve(ctx)
}

// buildStore creates the configured cache backend. The redis backend is
// verified with a ping at startup so misconfiguration fails fast.
func buildStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	switch cfg.Cache.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return cache.NewRedisStore(client), nil
	default:
		return cache.NewMemoryStore(cfg.Cache.MaxEntries), nil
	}
}

func cacheBackend(cfg *config.Config) string {
	if !cfg.Cache.Enabled {
		return "disabled"
	}
	return cfg.Cache.Backend
}
