// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package adapter

import (
	"time"

	"github.com/tomtom215/chainplay/internal/realtime"
	"github.com/tomtom215/chainplay/internal/validation"
)

// Config is the per-game adapter configuration.
type Config struct {
	GameID          string `koanf:"game_id" validate:"required,gameid"`
	GameName        string `koanf:"game_name"`
	ContractAddress string `koanf:"contract_address" validate:"omitempty,evmaddress"`
	RPCEndpoint     string `koanf:"rpc_endpoint" validate:"required,url"`
	// WSEndpoint enables push updates when set.
	WSEndpoint string `koanf:"ws_endpoint" validate:"omitempty,url"`

	Retry    RetryConfig    `koanf:"retry"`
	Cache    CacheConfig    `koanf:"cache"`
	Realtime RealtimeConfig `koanf:"realtime"`

	// StalenessWindow bounds how old the last successful sync may be for
	// the adapter to report healthy.
	StalenessWindow time.Duration `koanf:"staleness_window" validate:"gte=0"`
	// PushQueueSize is the number of push events buffered for the worker.
	PushQueueSize int `koanf:"push_queue_size" validate:"gte=0"`
	// RequestsPerSecond caps calls to the raw data source (0 = unlimited).
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`
	RequestTimeout    time.Duration `koanf:"request_timeout" validate:"gte=0"`
}

// RetryConfig drives executeWithRetry.
type RetryConfig struct {
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0,lte=20"`
	BaseDelay         time.Duration `koanf:"base_delay" validate:"gte=0"`
	MaxDelay          time.Duration `koanf:"max_delay" validate:"gte=0"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier" validate:"gte=0"`
}

// CacheConfig controls how the adapter uses the shared cache.
type CacheConfig struct {
	Enabled bool `koanf:"enabled"`
	// TTL for records written by this adapter; 0 defers to the cache layer.
	TTL time.Duration `koanf:"ttl" validate:"gte=0"`
	// MaxEntries caps a single warm-up batch (0 = no cap).
	MaxEntries int `koanf:"max_entries" validate:"gte=0"`
}

// RealtimeConfig is the push connection policy. The endpoint comes from
// Config.WSEndpoint.
type RealtimeConfig struct {
	ReconnectInterval    time.Duration `koanf:"reconnect_interval" validate:"gte=0"`
	MaxReconnectInterval time.Duration `koanf:"max_reconnect_interval" validate:"gte=0"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts" validate:"gte=0"`
	HeartbeatInterval    time.Duration `koanf:"heartbeat_interval" validate:"gte=0"`
	MessageTimeout       time.Duration `koanf:"message_timeout" validate:"gte=0"`
}

// DefaultConfig returns the defaults applied to every configured game.
func DefaultConfig() Config {
	return Config{
		Retry: RetryConfig{
			MaxRetries:        3,
			BaseDelay:         200 * time.Millisecond,
			MaxDelay:          5 * time.Second,
			BackoffMultiplier: 2,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        5 * time.Minute,
			MaxEntries: 1000,
		},
		Realtime: RealtimeConfig{
			ReconnectInterval:    time.Second,
			MaxReconnectInterval: 30 * time.Second,
			MaxReconnectAttempts: 10,
			HeartbeatInterval:    30 * time.Second,
			MessageTimeout:       90 * time.Second,
		},
		StalenessWindow:   10 * time.Minute,
		PushQueueSize:     256,
		RequestsPerSecond: 10,
		RequestTimeout:    10 * time.Second,
	}
}

// Validate checks the configuration with the shared validator.
func (c Config) Validate() error {
	return validation.ValidateStruct(c)
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = d.Retry.BaseDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = d.Retry.MaxDelay
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		c.Retry.MaxDelay = c.Retry.BaseDelay
	}
	if c.Retry.BackoffMultiplier < 1 {
		c.Retry.BackoffMultiplier = d.Retry.BackoffMultiplier
	}
	if c.StalenessWindow <= 0 {
		c.StalenessWindow = d.StalenessWindow
	}
	if c.PushQueueSize <= 0 {
		c.PushQueueSize = d.PushQueueSize
	}
	if c.GameName == "" {
		c.GameName = c.GameID
	}
}

// realtimeConfig builds the connection config for this game.
func (c Config) realtimeConfig() realtime.Config {
	return realtime.Config{
		GameID:               c.GameID,
		Endpoint:             c.WSEndpoint,
		ReconnectInterval:    c.Realtime.ReconnectInterval,
		MaxReconnectInterval: c.Realtime.MaxReconnectInterval,
		MaxReconnectAttempts: c.Realtime.MaxReconnectAttempts,
		HeartbeatInterval:    c.Realtime.HeartbeatInterval,
		MessageTimeout:       c.Realtime.MessageTimeout,
	}
}
