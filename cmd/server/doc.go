// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

// Package main is the entry point for the chainplay server.
//
// Chainplay keeps a normalized, cached view of player state across several
// blockchain games. Each configured game gets an adapter that pulls player
// data over HTTP with retry and a circuit breaker, listens for pushed
// updates over a reconnecting WebSocket, and writes through a shared cache
// layer.
//
// # Startup
//
//  1. Configuration: defaults, config.yaml, environment (koanf v2)
//  2. Logging: zerolog, bridged to slog for the supervisor
//  3. Cache store: memory, Redis or Badger, wrapped by the cache layer
//  4. Game registry: one adapter per configured game
//  5. Supervisor tree: cache sweeper, adapters, health checker, HTTP server
//
// # Configuration
//
// Games are listed in the config file:
//
//	games:
//	  - game_id: chainquest
//	    rpc_endpoint: https://api.chainquest.example
//	    ws_endpoint: wss://push.chainquest.example/ws
//
// Common environment overrides: HTTP_PORT, LOG_LEVEL, LOG_FORMAT,
// CACHE_STORE, CACHE_DEFAULT_TTL, REDIS_ADDR, BADGER_PATH.
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context; every service stops within
// the configured shutdown timeout.
package main
