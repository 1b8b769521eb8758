// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/chainplay/internal/cache"
	"github.com/tomtom215/chainplay/internal/gameerr"
	"github.com/tomtom215/chainplay/internal/metrics"
	"github.com/tomtom215/chainplay/internal/models"
	"github.com/tomtom215/chainplay/internal/realtime"
)

// Push event outcomes recorded in metrics.
const (
	pushApplied      = "applied"
	pushUnsubscribed = "dropped_unsubscribed"
	pushOverflow     = "dropped_overflow"
	pushFailed       = "failed"
)

// Start connects the source and the push connection and starts the push
// worker. Start on a running adapter is a no-op.
func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.stopWorker != nil {
		return nil
	}

	err := a.executeWithRetry(ctx, "connectToGameNetwork", a.source.ConnectToGameNetwork)
	if err != nil {
		return err
	}
	if a.conn != nil {
		if err := a.conn.Connect(ctx); err != nil {
			_ = a.source.DisconnectFromGameNetwork(context.WithoutCancel(ctx))
			return err
		}
	}

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	a.stopWorker, a.workerDone = cancel, done
	go a.pushWorker(wctx, done)

	a.logger.Info().Bool("push", a.conn != nil).Msg("Adapter started")
	return nil
}

// Stop disconnects and waits for the push worker to exit. Queued events
// that were not processed yet are kept for the next Start.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.stopWorker == nil {
		return nil
	}

	if a.conn != nil {
		_ = a.conn.Disconnect()
	}
	a.stopWorker()
	<-a.workerDone
	a.stopWorker, a.workerDone = nil, nil

	err := a.source.DisconnectFromGameNetwork(ctx)
	a.logger.Info().Msg("Adapter stopped")
	return err
}

// Serve runs the adapter until ctx ends. It returns early with an error
// when the push connection gives up reconnecting, so a supervisor can
// restart the adapter with a fresh connection lifecycle.
func (a *Adapter) Serve(ctx context.Context) error {
	select {
	case <-a.terminal:
	default:
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Stop(stopCtx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-a.terminal:
		return err
	}
}

// String names the adapter in supervisor logs.
func (a *Adapter) String() string {
	return "adapter-" + a.cfg.GameID
}

// onEvent runs on the connection's read goroutine and must not block.
func (a *Adapter) onEvent(ev realtime.Event) {
	switch ev.Type {
	case realtime.EventHeartbeat:
		return
	case realtime.EventError:
		a.onConnectionError(ev)
		return
	}

	if a.conn == nil || !a.conn.IsSubscribed(ev.PlayerID) {
		metrics.RecordPushEvent(a.cfg.GameID, pushUnsubscribed)
		return
	}
	select {
	case a.events <- ev:
	default:
		metrics.RecordPushEvent(a.cfg.GameID, pushOverflow)
		a.logger.Warn().Str("player_id", ev.PlayerID).Str("type", string(ev.Type)).Msg("Push queue full; dropping event")
	}
}

func (a *Adapter) onConnectionError(ev realtime.Event) {
	kind := gameerr.KindOf(ev.Err)
	metrics.RecordAdapterError(a.cfg.GameID, "push", string(kind))
	if !ev.Terminal {
		a.logger.Debug().Err(ev.Err).Str("kind", string(kind)).Msg("Push connection reported an error")
		return
	}
	a.logger.Error().Err(ev.Err).Msg("Push connection closed permanently")
	select {
	case a.terminal <- ev.Err:
	default:
	}
}

func (a *Adapter) pushWorker(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.events:
			a.applyPush(ctx, ev)
		}
	}
}

// applyPush re-derives the player's record from one event, stores it and
// invokes the callback once. Full PLAYER_UPDATE payloads are normalized
// directly; deltas invalidate the affected keys and trigger a fresh fetch.
func (a *Adapter) applyPush(ctx context.Context, ev realtime.Event) {
	if a.conn != nil && !a.conn.IsSubscribed(ev.PlayerID) {
		metrics.RecordPushEvent(a.cfg.GameID, pushUnsubscribed)
		return
	}

	rec, err := a.derive(ctx, ev)
	if err != nil {
		metrics.RecordPushEvent(a.cfg.GameID, pushFailed)
		a.logger.Warn().Err(err).Str("player_id", ev.PlayerID).Str("type", string(ev.Type)).Msg("Push event not applied")
		return
	}
	a.writePush(ctx, rec)
	metrics.RecordPushEvent(a.cfg.GameID, pushApplied)

	a.mu.RLock()
	cb := a.callback
	a.mu.RUnlock()
	if cb != nil {
		cb(rec.Clone())
	}
}

func (a *Adapter) derive(ctx context.Context, ev realtime.Event) (*models.PlayerRecord, error) {
	if ev.Type == realtime.EventPlayerUpdate && !ev.Delta {
		raw, err := DecodeRaw(ev.Data)
		if err != nil {
			err = wrapError(a.cfg.GameID, "push", err)
			a.recordError("push", err)
			return nil, err
		}
		return a.normalize(ev.PlayerID, raw)
	}

	trigger, ok := triggerFor(ev.Type)
	if !ok {
		return nil, gameerr.New(gameerr.KindValidation, a.cfg.GameID, "push", fmt.Sprintf("unsupported event type %s", ev.Type))
	}
	if a.cache != nil {
		n := a.cache.InvalidateByTrigger(ctx, trigger, map[string]string{
			"gameId":   a.cfg.GameID,
			"playerId": ev.PlayerID,
		})
		a.logger.Debug().Str("trigger", trigger).Int("invalidated", n).Str("player_id", ev.PlayerID).Msg("Applied push delta")
	}
	return a.load(ctx, ev.PlayerID)
}

// triggerFor maps a push event onto the cache invalidation trigger.
func triggerFor(t realtime.EventType) (string, bool) {
	switch t {
	case realtime.EventAssetChange:
		return cache.TriggerAssetTransfer, true
	case realtime.EventAchievementEarned:
		return cache.TriggerAchievementEarned, true
	case realtime.EventPlayerUpdate:
		return cache.TriggerPlayerUpdate, true
	}
	return "", false
}
