// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

// Package api serves the diagnostics and operations HTTP surface: health
// probes, adapter status, player lookups, cache administration and the
// Prometheus scrape endpoint. Routing uses chi.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/chainplay/internal/logging"
	"github.com/tomtom215/chainplay/internal/metrics"
)

// NewRouter builds the chi router for h.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogging)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMetrics)

	// ========================
	// Health Endpoints
	// ========================
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	// ========================
	// Games
	// ========================
	r.Route("/api/v1/games", func(r chi.Router) {
		r.Get("/", h.ListGames)
		r.Get("/{gameId}/players/{playerId}", h.GetPlayer)
		r.Post("/{gameId}/warmup", h.WarmUp)
	})

	// ========================
	// Cache Administration
	// ========================
	r.Route("/api/v1/cache", func(r chi.Router) {
		r.Get("/metrics", h.CacheMetrics)
		r.Delete("/metrics", h.ResetCacheMetrics)
		r.Get("/strategies", h.CacheStrategies)
		r.Post("/invalidate", h.Invalidate)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestLogging ties the chi request ID to the logging correlation ID so
// every log line of a request, adapters included, carries it.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := chimiddleware.GetReqID(ctx); id != "" {
			ctx = logging.ContextWithCorrelationID(ctx, id)
		} else {
			ctx = logging.ContextWithNewCorrelationID(ctx)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestMetrics observes request latency labeled by the matched route
// pattern, never the raw path, to keep cardinality bounded.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.APIRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
