// Package main is the entry point for the llmrouter gateway.
package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/llmrouter/gateway/internal/config"
	"github.com/llmrouter/gateway/internal/mcpgateway"
	"github.com/llmrouter/gateway/internal/metrics"
	"github.com/llmrouter/gateway/internal/provider"
	"github.com/llmrouter/gateway/internal/ratelimit"
	"github.com/llmrouter/gateway/internal/router"
	"github.com/llmrouter/gateway/internal/server"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	drivers := make(map[string]provider.Driver, len(cfg.Providers))
	managers := make(map[string]*router.ModelManager, len(cfg.Providers))
	catalogs := make(map[string]*provider.Catalog, len(cfg.Providers))
	entries := make([]router.ProviderEntry, 0, len(cfg.Providers))

	for _, p := range cfg.Providers {
		drv, err := provider.New(p)
		if err != nil {
			log.Fatalf("provider %q: %v", p.Name, err)
		}
		drivers[p.Name] = drv

		manager := router.NewModelManager(p.Name, p.Models)
		managers[p.Name] = manager
		catalogs[p.Name] = provider.NewCatalog(drv, p.Name, p.CompiledPattern(), manager)

		entries = append(entries, router.ProviderEntry{Name: p.Name, Pattern: p.CompiledPattern()})
		log.Printf("registered provider %q (kind=%s, %d configured models)", p.Name, p.Kind, len(p.Models))
	}

	gate, err := buildRateLimitGate(cfg.RateLimit)
	if err != nil {
		log.Fatalf("rate limit storage: %v", err)
	}

	var reg *prometheus.Registry
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		m = metrics.New(reg)
	}

	var mcp *mcpgateway.Registry
	if cfg.MCP.Enabled {
		mcp = mcpgateway.NewRegistry()
	}

	srv := server.New(server.Deps{
		Config:     cfg,
		Drivers:    drivers,
		Managers:   managers,
		Catalogs:   catalogs,
		Entries:    entries,
		Gate:       gate,
		Metrics:    m,
		MetricsReg: reg,
		MCP:        mcp,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("llmrouter listening on :%d", cfg.Server.Port)

	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildRateLimitGate constructs the token rate-limit gate's storage
// backend from config (spec.md §4.5). An empty backend leaves the gate
// entirely disabled, since the gate is an optional capability (spec.md
// §4.5 "operates only when... a token rate-limiter capability is
// configured"); an unrecognized backend is returned as an error.
func buildRateLimitGate(cfg config.RateLimitStorageConfig) (*ratelimit.Gate, error) {
	var storage ratelimit.Storage
	switch cfg.Backend {
	case "":
		return nil, nil
	case "memory":
		storage = ratelimit.NewMemoryStorage()
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		storage = ratelimit.NewRedisStorage(client)
	default:
		return nil, fmt.Errorf("unknown rate_limit_storage.backend %q", cfg.Backend)
	}

	counter, err := ratelimit.NewCounter()
	if err != nil {
		return nil, fmt.Errorf("building token counter: %w", err)
	}
	return ratelimit.NewGate(storage, counter), nil
}
