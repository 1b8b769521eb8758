// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/chainplay/internal/logging"
)

// Loader populates the cache for one player of a game, typically by
// fetching through the game's adapter, which writes through.
type Loader func(ctx context.Context, playerID string) error

// WarmUpReport summarizes one WarmUp batch.
type WarmUpReport struct {
	GameID    string           `json:"gameId"`
	Requested int              `json:"requested"`
	Loaded    int              `json:"loaded"`
	Failed    map[string]error `json:"-"`
	Duration  time.Duration    `json:"duration"`
}

// FailedPlayers lists the player IDs that could not be loaded.
func (r WarmUpReport) FailedPlayers() []string {
	out := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		out = append(out, id)
	}
	return out
}

// ErrNoLoader is reported for every player of a game with no registered loader.
var ErrNoLoader = errors.New("no warm-up loader registered")

// RegisterLoader sets the loader used by WarmUp for gameID, replacing any
// previous one.
func (l *Layer) RegisterLoader(gameID string, loader Loader) {
	l.loadersMu.Lock()
	defer l.loadersMu.Unlock()
	if loader == nil {
		delete(l.loaders, gameID)
		return
	}
	l.loaders[gameID] = loader
}

// WarmUp loads a batch of players with bounded concurrency. A failure for
// one player is recorded in the report and never stops the rest.
func (l *Layer) WarmUp(ctx context.Context, gameID string, playerIDs []string) WarmUpReport {
	start := time.Now()
	ctx = logging.ContextWithNewCorrelationID(ctx)

	ids := dedupe(playerIDs)
	report := WarmUpReport{GameID: gameID, Requested: len(ids), Failed: make(map[string]error)}

	l.loadersMu.RLock()
	loader := l.loaders[gameID]
	l.loadersMu.RUnlock()

	if loader == nil {
		for _, id := range ids {
			report.Failed[id] = ErrNoLoader
		}
		report.Duration = time.Since(start)
		return report
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.WarmUpConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			err := loader(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[id] = err
			} else {
				report.Loaded++
			}
			// Never abort siblings.
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	logging.Ctx(ctx).Info().
		Str("game_id", gameID).
		Int("requested", report.Requested).
		Int("loaded", report.Loaded).
		Int("failed", len(report.Failed)).
		Dur("duration", report.Duration).
		Msg("Cache warm-up finished")
	return report
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
