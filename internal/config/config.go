// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

// Package config loads the service configuration.
//
// Loading order (koanf v2):
//  1. Defaults from defaultConfig()
//  2. Optional YAML file (CONFIG_PATH, or the first of DefaultConfigPaths)
//  3. Environment variables mapped in envTransformFunc
//
// Games are configured as a YAML list; every entry starts from
// adapter.DefaultConfig() so a game only lists what it overrides.
//
// Config is immutable after Load and safe for concurrent reads.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/chainplay/internal/adapter"
	"github.com/tomtom215/chainplay/internal/cache"
	"github.com/tomtom215/chainplay/internal/logging"
	"github.com/tomtom215/chainplay/internal/validation"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig     `koanf:"server"`
	Cache   CacheConfig      `koanf:"cache"`
	Logging LoggingConfig    `koanf:"logging"`
	Games   []adapter.Config `koanf:"-" validate:"dive"`
}

// ServerConfig configures the diagnostics HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// HealthCheckInterval is how often every adapter's source is pinged.
	HealthCheckInterval time.Duration `koanf:"health_check_interval" validate:"gt=0"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Cache store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreBadger = "badger"
)

// CacheConfig configures the shared cache layer and its backing store.
type CacheConfig struct {
	Store                string           `koanf:"store" validate:"oneof=memory redis badger"`
	DefaultTTL           time.Duration    `koanf:"default_ttl" validate:"gt=0"`
	MaxMemoryUsage       int64            `koanf:"max_memory_usage" validate:"gte=0"`
	CompressionEnabled   bool             `koanf:"compression_enabled"`
	CompressionThreshold int              `koanf:"compression_threshold" validate:"gte=0"`
	MetricsEnabled       bool             `koanf:"metrics_enabled"`
	SweepInterval        time.Duration    `koanf:"sweep_interval" validate:"gt=0"`
	LatencyWindow        int              `koanf:"latency_window" validate:"gte=0"`
	WarmUpConcurrency    int              `koanf:"warm_up_concurrency" validate:"gte=0"`
	Strategies           []cache.Strategy `koanf:"-"`
	Redis                RedisConfig      `koanf:"redis"`
	Badger               BadgerConfig     `koanf:"badger"`
}

// RedisConfig is used when Store is "redis".
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
	Prefix   string `koanf:"prefix"`
}

// BadgerConfig is used when Store is "badger".
type BadgerConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// LayerConfig converts to the cache layer configuration.
func (c CacheConfig) LayerConfig() cache.Config {
	return cache.Config{
		DefaultTTL:           c.DefaultTTL,
		CompressionEnabled:   c.CompressionEnabled,
		CompressionThreshold: c.CompressionThreshold,
		MetricsEnabled:       c.MetricsEnabled,
		Strategies:           c.Strategies,
		SweepInterval:        c.SweepInterval,
		LatencyWindow:        c.LatencyWindow,
		WarmUpConcurrency:    c.WarmUpConcurrency,
	}
}

// LoggerConfig converts to the logging package configuration.
func (l LoggingConfig) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	return cfg
}

// Validate checks field rules and the cross-field constraints the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	var errs []error
	switch c.Cache.Store {
	case StoreRedis:
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required when cache.store is redis"))
		}
	case StoreBadger:
		if c.Cache.Badger.Path == "" && !c.Cache.Badger.InMemory {
			errs = append(errs, errors.New("cache.badger.path is required unless cache.badger.in_memory is set"))
		}
	}
	seen := make(map[string]struct{}, len(c.Games))
	for _, g := range c.Games {
		if _, dup := seen[g.GameID]; dup {
			errs = append(errs, fmt.Errorf("game %q is configured more than once", g.GameID))
		}
		seen[g.GameID] = struct{}{}
	}
	return errors.Join(errs...)
}
