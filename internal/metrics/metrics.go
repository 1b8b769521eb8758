// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache layer
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainplay_cache_requests_total",
			Help: "Cache get requests by result",
		},
		[]string{"key_type", "result"}, // result: "hit", "miss"
	)

	CacheGetDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chainplay_cache_get_duration_seconds",
			Help:    "Latency of cache get including decode and decompression",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainplay_cache_evictions_total",
			Help: "Entries removed from the cache by reason",
		},
		[]string{"reason"}, // "expired", "memory", "delete", "invalidate"
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainplay_cache_errors_total",
			Help: "Backing store and codec failures",
		},
		[]string{"operation"},
	)

	CacheCompressedWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainplay_cache_compressed_writes_total",
			Help: "Cache writes stored zstd compressed",
		},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainplay_cache_trigger_invalidations_total",
			Help: "Keys removed by trigger based invalidation",
		},
		[]string{"trigger"},
	)

	// Realtime connections
	RealtimeState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainplay_realtime_state",
			Help: "Connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=closed)",
		},
		[]string{"game_id"},
	)

	RealtimeReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainplay_realtime_reconnect_attempts_total",
			Help: "Reconnect attempts per game",
		},
		[]string{"game_id"},
	)

	RealtimeMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainplay_realtime_messages_total",
			Help: "Inbound push frames by event type",
		},
		[]string{"game_id", "type"},
	)

	RealtimeSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainplay_realtime_subscribed_players",
			Help: "Players subscribed on a connection",
		},
		[]string{"game_id"},
	)

	// Adapters
	AdapterFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainplay_adapter_fetch_duration_seconds",
			Help:    "Duration of player fetches including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"game_id", "source"}, // source: "cache", "source"
	)

	AdapterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainplay_adapter_errors_total",
			Help: "Adapter errors by kind",
		},
		[]string{"game_id", "operation", "kind"},
	)

	AdapterRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainplay_adapter_retries_total",
			Help: "Retried attempts inside the retry executor",
		},
		[]string{"game_id", "operation"},
	)

	AdapterPushEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainplay_adapter_push_events_total",
			Help: "Push events by outcome",
		},
		[]string{"game_id", "outcome"}, // "applied", "dropped_unsubscribed", "dropped_overflow", "failed"
	)

	AdapterLastSync = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainplay_adapter_last_sync_timestamp_seconds",
			Help: "Unix time of the last successful upstream sync",
		},
		[]string{"game_id"},
	)

	AdapterNormalizationAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainplay_adapter_normalization_anomalies_total",
			Help: "Raw records dropped or defaulted during normalization",
		},
		[]string{"game_id", "reason"},
	)

	// Upstream circuit breakers
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainplay_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainplay_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// HTTP diagnostics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainplay_api_request_duration_seconds",
			Help:    "Diagnostics API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordCacheGet records one cache lookup.
func RecordCacheGet(keyType string, hit bool, d time.Duration) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequests.WithLabelValues(keyType, result).Inc()
	CacheGetDuration.Observe(d.Seconds())
}

// RecordAdapterError counts an error surfaced by an adapter operation.
func RecordAdapterError(gameID, operation, kind string) {
	AdapterErrors.WithLabelValues(gameID, operation, kind).Inc()
}

// RecordPushEvent counts the outcome of one push event.
func RecordPushEvent(gameID, outcome string) {
	AdapterPushEvents.WithLabelValues(gameID, outcome).Inc()
}

// RecordSync sets the last sync gauge.
func RecordSync(gameID string, at time.Time) {
	AdapterLastSync.WithLabelValues(gameID).Set(float64(at.Unix()))
}
