// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/chainplay/internal/api"
	"github.com/tomtom215/chainplay/internal/cache"
	"github.com/tomtom215/chainplay/internal/config"
	"github.com/tomtom215/chainplay/internal/games"
	"github.com/tomtom215/chainplay/internal/logging"
	"github.com/tomtom215/chainplay/internal/supervisor"
	"github.com/tomtom215/chainplay/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging.LoggerConfig())

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Chainplay failed")
	}
	logging.Info().Msg("Chainplay stopped")
}

// run wires every component and blocks until a shutdown signal.
func run(cfg *config.Config) error {
	logging.Info().
		Int("games", len(cfg.Games)).
		Str("cache_store", cfg.Cache.Store).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting chainplay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	layer, err := cache.New(store, cfg.Cache.LayerConfig())
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create cache layer: %w", err)
	}
	defer func() {
		if err := layer.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cache")
		}
	}()

	registry, err := games.NewRegistry(cfg.Games, layer)
	if err != nil {
		return fmt.Errorf("build game adapters: %w", err)
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	// === ADD SERVICES TO SUPERVISOR TREE ===

	tree.AddCacheService(layer)

	for _, a := range registry.Adapters() {
		tree.AddAdapterService(a)
		logging.Info().Str("game_id", a.GameID()).Msg("Adapter added to supervisor tree")
	}
	tree.AddAdapterService(services.NewHealthCheckService(registry, cfg.Server.HealthCheckInterval))

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(api.NewHandler(registry, layer)),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, cfg.Server.ShutdownTimeout))

	// === START SUPERVISOR TREE ===

	logging.Info().Msg("Starting supervisor tree...")
	err = tree.Serve(ctx)

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	return nil
}

// openStore builds the configured cache backend.
func openStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return cache.NewMemoryStore(cfg.MaxMemoryUsage), nil
	case config.StoreRedis:
		return cache.DialRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	case config.StoreBadger:
		return cache.OpenBadger(cache.BadgerConfig{Path: cfg.Badger.Path, InMemory: cfg.Badger.InMemory})
	default:
		return nil, fmt.Errorf("unknown cache store %q", cfg.Store)
	}
}
