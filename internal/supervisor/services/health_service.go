// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package services

import (
	"context"
	"time"

	"github.com/tomtom215/chainplay/internal/logging"
)

// HealthChecker probes every game source and returns the failures keyed by
// game ID.
type HealthChecker interface {
	CheckHealth(ctx context.Context) map[string]error
}

// HealthCheckService probes all adapters on a fixed interval. A probe runs
// immediately on start so readiness reflects reality without waiting a
// full interval.
type HealthCheckService struct {
	checker  HealthChecker
	interval time.Duration
}

// NewHealthCheckService creates the checker service. A non-positive
// interval means one minute.
func NewHealthCheckService(checker HealthChecker, interval time.Duration) *HealthCheckService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &HealthCheckService{checker: checker, interval: interval}
}

// Serve implements suture.Service.
func (h *HealthCheckService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		h.probe(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *HealthCheckService) probe(ctx context.Context) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	logger := logging.Ctx(ctx)

	results := h.checker.CheckHealth(ctx)
	failed := 0
	for gameID, err := range results {
		if err == nil {
			continue
		}
		failed++
		logger.Warn().Err(err).Str("game_id", gameID).Msg("Adapter health check failed")
	}
	logger.Debug().Int("failed", failed).Msg("Adapter health check complete")
}

func (h *HealthCheckService) String() string {
	return "health-checker"
}
