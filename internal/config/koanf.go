// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/chainplay/internal/adapter"
	"github.com/tomtom215/chainplay/internal/cache"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/chainplay/config.yaml",
	"/etc/chainplay/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

const (
	gamesPath      = "games"
	strategiesPath = "cache.invalidation_strategies"
)

// defaultConfig returns a Config with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	layer := cache.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        15 * time.Second,
			ShutdownTimeout:     10 * time.Second,
			HealthCheckInterval: time.Minute,
		},
		Cache: CacheConfig{
			Store:                StoreMemory,
			DefaultTTL:           layer.DefaultTTL,
			MaxMemoryUsage:       128 << 20, // 128 MiB
			CompressionEnabled:   layer.CompressionEnabled,
			CompressionThreshold: layer.CompressionThreshold,
			MetricsEnabled:       layer.MetricsEnabled,
			SweepInterval:        layer.SweepInterval,
			LatencyWindow:        layer.LatencyWindow,
			WarmUpConcurrency:    layer.WarmUpConcurrency,
			Redis: RedisConfig{
				Addr:   "",
				Prefix: "chainplay:",
			},
			Badger: BadgerConfig{
				Path: "/data/cache",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf with layered sources:
//  1. Defaults
//  2. Config file (optional)
//  3. Environment variables
//
// The games list and the invalidation strategies are only read from the
// config file; every game entry is layered over adapter.DefaultConfig().
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return fromKoanf(k)
}

// fromKoanf unmarshals and validates an already layered instance.
func fromKoanf(k *koanf.Koanf) (*Config, error) {
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	games, err := unmarshalGames(k)
	if err != nil {
		return nil, err
	}
	cfg.Games = games

	cfg.Cache.Strategies = cache.DefaultStrategies()
	if k.Exists(strategiesPath) {
		var strategies []cache.Strategy
		if err := k.Unmarshal(strategiesPath, &strategies); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", strategiesPath, err)
		}
		cfg.Cache.Strategies = strategies
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// unmarshalGames decodes each games entry onto adapter defaults so that
// omitted fields keep their default values.
func unmarshalGames(k *koanf.Koanf) ([]adapter.Config, error) {
	entries := k.Slices(gamesPath)
	games := make([]adapter.Config, 0, len(entries))
	for i, entry := range entries {
		g := adapter.DefaultConfig()
		if err := entry.Unmarshal("", &g); err != nil {
			return nil, fmt.Errorf("failed to unmarshal games[%d]: %w", i, err)
		}
		games = append(games, g)
	}
	return games, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"shutdown_timeout":      "server.shutdown_timeout",
	"health_check_interval": "server.health_check_interval",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"cache_store":                 "cache.store",
	"cache_default_ttl":           "cache.default_ttl",
	"cache_max_memory":            "cache.max_memory_usage",
	"cache_compression_enabled":   "cache.compression_enabled",
	"cache_compression_threshold": "cache.compression_threshold",
	"cache_metrics_enabled":       "cache.metrics_enabled",
	"cache_sweep_interval":        "cache.sweep_interval",
	"cache_warmup_concurrency":    "cache.warm_up_concurrency",

	"redis_addr":     "cache.redis.addr",
	"redis_password": "cache.redis.password",
	"redis_db":       "cache.redis.db",
	"redis_prefix":   "cache.redis.prefix",

	"badger_path":      "cache.badger.path",
	"badger_in_memory": "cache.badger.in_memory",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - CACHE_STORE -> cache.store
//   - REDIS_ADDR -> cache.redis.addr
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	// Unmapped variables are skipped so the environment cannot pollute config.
	return ""
}
