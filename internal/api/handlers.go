// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/chainplay/internal/adapter"
	"github.com/tomtom215/chainplay/internal/cache"
	"github.com/tomtom215/chainplay/internal/games"
	"github.com/tomtom215/chainplay/internal/logging"
)

// GameDirectory is the adapter registry as seen by the API.
type GameDirectory interface {
	Get(gameID string) (*adapter.Adapter, bool)
	Statuses() []games.Status
	Healthy() bool
}

// CacheAdmin is the cache layer surface the API exposes.
type CacheAdmin interface {
	GetMetrics() cache.Metrics
	ResetMetrics()
	Strategies() []cache.Strategy
	InvalidatePattern(ctx context.Context, pattern string) int
	InvalidateByTrigger(ctx context.Context, trigger string, vars map[string]string) int
}

// Handler holds the dependencies of every endpoint.
type Handler struct {
	games     GameDirectory
	cache     CacheAdmin
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(games GameDirectory, cache CacheAdmin) *Handler {
	return &Handler{games: games, cache: cache, startTime: time.Now()}
}

// HealthLive reports that the process is up, regardless of game sources.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady returns 503 until every adapter is healthy.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	statuses := h.games.Statuses()
	ready := h.games.Healthy()

	unhealthy := make([]string, 0)
	for _, st := range statuses {
		if !st.Healthy {
			unhealthy = append(unhealthy, st.GameID)
		}
	}
	body := map[string]any{
		"ready":     ready,
		"games":     len(statuses),
		"unhealthy": unhealthy,
		"uptime":    time.Since(h.startTime).Seconds(),
	}
	if !ready {
		writeEnvelope(w, r, http.StatusServiceUnavailable, &APIResponse{
			Data:  body,
			Error: &APIError{Code: ErrCodeServiceUnavailable, Message: "one or more game adapters are unhealthy"},
			Meta:  meta(r),
		})
		return
	}
	respondJSON(w, r, http.StatusOK, body)
}

// ListGames returns the status of every configured adapter.
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, h.games.Statuses())
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*adapter.Adapter, bool) {
	gameID := chi.URLParam(r, "gameId")
	a, ok := h.games.Get(gameID)
	if !ok {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "unknown game "+gameID, nil)
	}
	return a, ok
}

// GetPlayer returns the canonical record of one player, cache first.
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	rec, err := a.FetchPlayerData(r.Context(), chi.URLParam(r, "playerId"))
	if err != nil {
		respondGameError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, rec)
}

type warmUpRequest struct {
	PlayerIDs []string `json:"playerIds" validate:"required,min=1,max=10000,dive,required"`
}

type warmUpResponse struct {
	cache.WarmUpReport
	FailedPlayers []string `json:"failedPlayers"`
}

// WarmUp preloads a batch of players of one game into the cache.
func (h *Handler) WarmUp(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req warmUpRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	report := a.WarmUp(r.Context(), req.PlayerIDs)
	respondJSON(w, r, http.StatusOK, warmUpResponse{WarmUpReport: report, FailedPlayers: report.FailedPlayers()})
}

// CacheMetrics returns the cache counters and latency summary.
func (h *Handler) CacheMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, h.cache.GetMetrics())
}

// ResetCacheMetrics zeroes the cache counters.
func (h *Handler) ResetCacheMetrics(w http.ResponseWriter, r *http.Request) {
	h.cache.ResetMetrics()
	logging.Ctx(r.Context()).Info().Msg("Cache metrics reset")
	w.WriteHeader(http.StatusNoContent)
}

// CacheStrategies lists the configured invalidation strategies.
func (h *Handler) CacheStrategies(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, h.cache.Strategies())
}

type invalidateRequest struct {
	Trigger  string `json:"trigger" validate:"required_without=Pattern,excluded_with=Pattern"`
	Pattern  string `json:"pattern" validate:"required_without=Trigger"`
	GameID   string `json:"gameId" validate:"omitempty,gameid"`
	PlayerID string `json:"playerId"`
	AssetID  string `json:"assetId"`
}

// Invalidate removes cache entries either by glob pattern or by firing a
// trigger through the configured strategies.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	var removed int
	if req.Pattern != "" {
		if err := cache.ValidatePattern(req.Pattern); err != nil {
			respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
			return
		}
		removed = h.cache.InvalidatePattern(r.Context(), req.Pattern)
	} else {
		vars := map[string]string{}
		for name, v := range map[string]string{"gameId": req.GameID, "playerId": req.PlayerID, "assetId": req.AssetID} {
			if v != "" {
				vars[name] = v
			}
		}
		removed = h.cache.InvalidateByTrigger(r.Context(), req.Trigger, vars)
	}

	logging.Ctx(r.Context()).Info().
		Str("trigger", req.Trigger).
		Str("pattern", req.Pattern).
		Int("removed", removed).
		Msg("Cache invalidated via API")
	respondJSON(w, r, http.StatusOK, map[string]int{"removed": removed})
}
