// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package games

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/chainplay/internal/adapter"
	"github.com/tomtom215/chainplay/internal/cache"
	"github.com/tomtom215/chainplay/internal/logging"
	"github.com/tomtom215/chainplay/internal/realtime"
)

// Factory builds the Source for one configured game.
type Factory func(cfg adapter.Config) (adapter.Source, error)

var factories = map[string]Factory{
	ChainQuestID:  NewChainQuest,
	PixelRealmsID: NewPixelRealms,
}

// SourceFor returns the game's dedicated Source, or Generic.
func SourceFor(cfg adapter.Config) (adapter.Source, error) {
	if f, ok := factories[cfg.GameID]; ok {
		return f(cfg)
	}
	return NewGeneric(cfg)
}

// Status is one adapter's diagnostics entry.
type Status struct {
	GameID     string          `json:"gameId"`
	GameName   string          `json:"gameName"`
	Healthy    bool            `json:"healthy"`
	LastSync   *time.Time      `json:"lastSync,omitempty"`
	Connection realtime.Status `json:"connection"`
}

// Registry owns every configured adapter.
type Registry struct {
	adapters map[string]*adapter.Adapter
	order    []string
}

// NewRegistry builds one adapter per configuration entry, all sharing layer.
func NewRegistry(cfgs []adapter.Config, layer *cache.Layer, opts ...adapter.Option) (*Registry, error) {
	r := &Registry{adapters: make(map[string]*adapter.Adapter, len(cfgs))}
	for _, cfg := range cfgs {
		if _, dup := r.adapters[cfg.GameID]; dup {
			return nil, fmt.Errorf("game %q configured twice", cfg.GameID)
		}
		src, err := SourceFor(cfg)
		if err != nil {
			return nil, fmt.Errorf("build source for %s: %w", cfg.GameID, err)
		}
		a, err := adapter.New(cfg, src, layer, opts...)
		if err != nil {
			return nil, fmt.Errorf("build adapter for %s: %w", cfg.GameID, err)
		}
		r.adapters[cfg.GameID] = a
		r.order = append(r.order, cfg.GameID)
		logging.Info().Str("game_id", cfg.GameID).Bool("push", cfg.WSEndpoint != "").Msg("Registered game adapter")
	}
	sort.Strings(r.order)
	return r, nil
}

// Get returns the adapter for gameID.
func (r *Registry) Get(gameID string) (*adapter.Adapter, bool) {
	a, ok := r.adapters[gameID]
	return a, ok
}

// Adapters returns every adapter ordered by game ID.
func (r *Registry) Adapters() []*adapter.Adapter {
	out := make([]*adapter.Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}

// Statuses snapshots every adapter.
func (r *Registry) Statuses() []Status {
	out := make([]Status, 0, len(r.order))
	for _, a := range r.Adapters() {
		st := Status{
			GameID:     a.GameID(),
			GameName:   a.GameName(),
			Healthy:    a.IsHealthy(),
			Connection: a.ConnectionStatus(),
		}
		if last := a.LastSyncTime(); !last.IsZero() {
			st.LastSync = &last
		}
		out = append(out, st)
	}
	return out
}

// Healthy reports whether every adapter is healthy. An empty registry is
// healthy.
func (r *Registry) Healthy() bool {
	for _, a := range r.adapters {
		if !a.IsHealthy() {
			return false
		}
	}
	return true
}

// CheckHealth runs every adapter's health check and returns the failures
// keyed by game ID.
func (r *Registry) CheckHealth(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	for _, a := range r.Adapters() {
		if err := a.CheckHealth(ctx); err != nil {
			failed[a.GameID()] = err
		}
	}
	return failed
}
