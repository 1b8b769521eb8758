// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

// Package adapter is the consumer-facing entry point for one game's data.
//
// An Adapter composes a game-specific Source with the machinery every game
// shares: cache-first reads with write-through, the retry executor, push
// bridging from the game's realtime connection, and health tracking.
//
// Push and pull both write the same cache keys. When a push write for a
// player lands while a pull for the same player is in flight, the pull
// still returns its record but does not overwrite the cache.
package adapter

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/chainplay/internal/cache"
	"github.com/tomtom215/chainplay/internal/gameerr"
	"github.com/tomtom215/chainplay/internal/logging"
	"github.com/tomtom215/chainplay/internal/metrics"
	"github.com/tomtom215/chainplay/internal/models"
	"github.com/tomtom215/chainplay/internal/realtime"
)

// UpdateCallback receives a freshly normalized record for every push event
// the adapter applies. It runs on the adapter's push worker.
type UpdateCallback func(*models.PlayerRecord)

// GameAdapter is the contract consumers depend on.
type GameAdapter interface {
	GameID() string
	FetchPlayerData(ctx context.Context, playerID string) (*models.PlayerRecord, error)
	SubscribeToUpdates(cb UpdateCallback)
	UnsubscribeFromUpdates()
	SubscribePlayer(playerID string) error
	UnsubscribePlayer(playerID string) error
	ValidateAsset(ctx context.Context, asset models.Asset) bool
	IsHealthy() bool
	LastSyncTime() time.Time
	HandleError(err error) error
	ConnectionStatus() realtime.Status
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClock replaces time.Now for sync timestamps and staleness checks.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithConnection supplies the realtime connection instead of building one
// from Config.WSEndpoint.
func WithConnection(conn *realtime.Connection) Option {
	return func(a *Adapter) { a.conn = conn }
}

// Adapter is the default GameAdapter.
type Adapter struct {
	cfg    Config
	source Source
	cache  *cache.Layer
	conn   *realtime.Connection
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	lastSync time.Time
	callback UpdateCallback

	// writeMu orders cache write-through between pull and push. pushGen
	// only holds pushes written while a pull was in flight.
	writeMu  sync.Mutex
	writeGen atomic.Uint64
	pushGen  map[string]uint64
	pulls    int

	events   chan realtime.Event
	terminal chan error

	runMu      sync.Mutex
	stopWorker context.CancelFunc
	workerDone chan struct{}
}

var _ GameAdapter = (*Adapter)(nil)

// New builds an Adapter. layer may be nil, which disables caching.
func New(cfg Config, source Source, layer *cache.Layer, opts ...Option) (*Adapter, error) {
	if source == nil {
		return nil, errors.New("adapter: nil source")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Adapter{
		cfg:      cfg,
		source:   source,
		logger:   logging.WithComponent("adapter").With().Str("game_id", cfg.GameID).Logger(),
		now:      time.Now,
		pushGen:  make(map[string]uint64),
		events:   make(chan realtime.Event, cfg.PushQueueSize),
		terminal: make(chan error, 1),
	}
	if cfg.Cache.Enabled {
		a.cache = layer
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.conn == nil && cfg.WSEndpoint != "" {
		a.conn = realtime.New(cfg.realtimeConfig())
	}
	if a.conn != nil {
		a.conn.SetHandler(a.onEvent)
	}
	if a.cache != nil {
		a.cache.RegisterLoader(cfg.GameID, func(ctx context.Context, playerID string) error {
			_, err := a.FetchPlayerData(ctx, playerID)
			return err
		})
	}
	return a, nil
}

// GameID returns the configured game.
func (a *Adapter) GameID() string {
	return a.cfg.GameID
}

// GameName returns the display name.
func (a *Adapter) GameName() string {
	return a.cfg.GameName
}

// FetchPlayerData returns the canonical record for playerID, serving from
// the cache when possible. On a miss the raw fetch runs through the retry
// executor, the result is normalized, written through to the cache and
// lastSyncTime advances. The caller always receives its own copy.
func (a *Adapter) FetchPlayerData(ctx context.Context, playerID string) (*models.PlayerRecord, error) {
	if playerID == "" {
		return nil, gameerr.New(gameerr.KindValidation, a.cfg.GameID, "fetchPlayerData", "empty player id")
	}

	start := time.Now()
	if a.cache != nil {
		var cached models.PlayerRecord
		if a.cache.Get(ctx, cache.PlayerDataKey(a.cfg.GameID, playerID), &cached) {
			metrics.AdapterFetchDuration.WithLabelValues(a.cfg.GameID, "cache").Observe(time.Since(start).Seconds())
			return cached.Clone(), nil
		}
	}

	gen := a.beginPull()
	rec, err := a.load(ctx, playerID)
	if err != nil {
		a.endPull()
		return nil, err
	}
	metrics.AdapterFetchDuration.WithLabelValues(a.cfg.GameID, "source").Observe(time.Since(start).Seconds())

	a.writeThrough(ctx, rec, gen)
	return rec.Clone(), nil
}

// load fetches and normalizes one player, bypassing the cache.
func (a *Adapter) load(ctx context.Context, playerID string) (*models.PlayerRecord, error) {
	var raw RawRecord
	err := a.executeWithRetry(ctx, "fetchRawPlayerData", func(ctx context.Context) error {
		r, err := a.source.FetchRawPlayerData(ctx, playerID)
		if err != nil {
			return err
		}
		raw = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a.normalize(playerID, raw)
}

func (a *Adapter) normalize(playerID string, raw RawRecord) (*models.PlayerRecord, error) {
	rec, err := a.source.Normalize(playerID, raw)
	if err != nil {
		err = &gameerr.Error{
			Kind: gameerr.KindValidation, GameID: a.cfg.GameID, Op: "normalize",
			Message: err.Error(), Err: err,
		}
		a.recordError("normalize", err)
		return nil, err
	}
	if rec == nil {
		rec = &models.PlayerRecord{}
	}
	rec.PlayerID = playerID
	rec.GameID = a.cfg.GameID
	if rec.Statistics == nil {
		rec.Statistics = map[string]float64{}
	}

	now := a.now()
	rec.LastSyncTime = now
	a.markSynced(now)
	return rec, nil
}

func (a *Adapter) markSynced(at time.Time) {
	a.mu.Lock()
	if at.After(a.lastSync) {
		a.lastSync = at
	}
	a.mu.Unlock()
	metrics.RecordSync(a.cfg.GameID, at)
}

// beginPull registers an in-flight pull and returns the write generation
// at its start.
func (a *Adapter) beginPull() uint64 {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	a.pulls++
	return a.writeGen.Load()
}

func (a *Adapter) endPull() {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	a.endPullLocked()
}

// endPullLocked drops the recorded push generations once no pull is in
// flight.
func (a *Adapter) endPullLocked() {
	a.pulls--
	if a.pulls == 0 {
		clear(a.pushGen)
	}
}

// writeThrough stores a pulled record unless a push for the same player was
// written after the pull began (gen is the write generation read then). It
// ends the pull started by beginPull.
func (a *Adapter) writeThrough(ctx context.Context, rec *models.PlayerRecord, gen uint64) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	defer a.endPullLocked()
	if a.cache == nil {
		return
	}
	if a.pushGen[rec.PlayerID] > gen {
		a.logger.Debug().Str("player_id", rec.PlayerID).Msg("Skipping cache write; newer push already stored")
		return
	}
	a.writeGen.Add(1)
	a.storeLocked(ctx, rec)
}

// writePush stores a push-derived record and marks it as the newest write
// for its player.
func (a *Adapter) writePush(ctx context.Context, rec *models.PlayerRecord) {
	if a.cache == nil {
		return
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	gen := a.writeGen.Add(1)
	if a.pulls > 0 {
		a.pushGen[rec.PlayerID] = gen
	}
	a.storeLocked(ctx, rec)
}

func (a *Adapter) storeLocked(ctx context.Context, rec *models.PlayerRecord) {
	ttl := a.cfg.Cache.TTL
	game, player := a.cfg.GameID, rec.PlayerID
	a.cache.SetWithTTL(ctx, cache.PlayerDataKey(game, player), rec, ttl)
	a.cache.SetWithTTL(ctx, cache.AssetsKey(game, player), rec.Assets, ttl)
	a.cache.SetWithTTL(ctx, cache.AchievementsKey(game, player), rec.Achievements, ttl)
	a.cache.SetWithTTL(ctx, cache.StatisticsKey(game, player), rec.Statistics, ttl)
}

// SubscribeToUpdates installs cb as the single update callback, replacing
// any previous one.
func (a *Adapter) SubscribeToUpdates(cb UpdateCallback) {
	a.mu.Lock()
	a.callback = cb
	a.mu.Unlock()
}

// UnsubscribeFromUpdates clears the callback.
func (a *Adapter) UnsubscribeFromUpdates() {
	a.mu.Lock()
	a.callback = nil
	a.mu.Unlock()
}

// SubscribePlayer asks the game to push updates for playerID.
func (a *Adapter) SubscribePlayer(playerID string) error {
	if a.conn == nil {
		return gameerr.New(gameerr.KindValidation, a.cfg.GameID, "subscribe", "game has no push endpoint")
	}
	return a.conn.SubscribeToPlayer(playerID)
}

// UnsubscribePlayer stops push updates for playerID.
func (a *Adapter) UnsubscribePlayer(playerID string) error {
	if a.conn == nil {
		return nil
	}
	return a.conn.UnsubscribeFromPlayer(playerID)
}

// ValidateAsset runs the game's rules. Verdicts are cached per asset
// content: the same id with a different owner, type, rarity or metadata is
// validated again.
func (a *Adapter) ValidateAsset(ctx context.Context, asset models.Asset) bool {
	if a.cache == nil || asset.ID == "" {
		return a.source.ValidateAsset(ctx, asset)
	}
	fp, err := assetFingerprint(asset)
	if err != nil {
		return a.source.ValidateAsset(ctx, asset)
	}

	var cached bool
	key := cache.ValidationKey(a.cfg.GameID, asset.ID, fp)
	if a.cache.Get(ctx, key, &cached) {
		return cached
	}
	ok := a.source.ValidateAsset(ctx, asset)
	a.cache.Set(ctx, key, ok)
	return ok
}

// assetFingerprint hashes the asset's JSON form. Map keys marshal sorted, so
// equal assets always hash the same.
func assetFingerprint(asset models.Asset) (string, error) {
	b, err := json.Marshal(asset)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(xxhash.Sum64(b), 16), nil
}

// LastSyncTime returns the time of the last successful sync, or the zero
// time if there has been none.
func (a *Adapter) LastSyncTime() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastSync
}

// IsHealthy reports whether the push connection (when configured) is up and
// the last successful sync is within the staleness window.
func (a *Adapter) IsHealthy() bool {
	if a.conn != nil && a.conn.State() != realtime.StateConnected {
		return false
	}
	last := a.LastSyncTime()
	if last.IsZero() {
		return false
	}
	return a.now().Sub(last) <= a.cfg.StalenessWindow
}

// CheckHealth pings the source through the retry executor. A successful
// ping counts as a sync. The outcome is cached under the adapter_health key.
func (a *Adapter) CheckHealth(ctx context.Context) error {
	pinger, ok := a.source.(Pinger)
	if !ok {
		return nil
	}
	err := a.executeWithRetry(ctx, "healthCheck", pinger.Ping)
	if err == nil {
		a.markSynced(a.now())
	}
	if a.cache != nil {
		a.cache.Set(ctx, cache.HealthKey(a.cfg.GameID), HealthReport{
			GameID:    a.cfg.GameID,
			Healthy:   err == nil && a.IsHealthy(),
			CheckedAt: a.now(),
			Error:     errorString(err),
		})
	}
	return err
}

// HealthReport is the cached outcome of CheckHealth.
type HealthReport struct {
	GameID    string    `json:"gameId"`
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checkedAt"`
	Error     string    `json:"error,omitempty"`
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// HandleError classifies an arbitrary error into a domain error for this
// game. Domain errors pass through unchanged.
func (a *Adapter) HandleError(err error) error {
	return wrapError(a.cfg.GameID, "adapter", err)
}

// ConnectionStatus returns the push connection snapshot. Games without a
// push endpoint report a disconnected status.
func (a *Adapter) ConnectionStatus() realtime.Status {
	if a.conn == nil {
		return realtime.Status{GameID: a.cfg.GameID, State: realtime.StateDisconnected}
	}
	return a.conn.Status()
}

// WarmUp loads a batch of players into the cache, capped at the configured
// MaxEntries.
func (a *Adapter) WarmUp(ctx context.Context, playerIDs []string) cache.WarmUpReport {
	if a.cache == nil {
		return cache.WarmUpReport{GameID: a.cfg.GameID, Failed: map[string]error{}}
	}
	if limit := a.cfg.Cache.MaxEntries; limit > 0 && len(playerIDs) > limit {
		a.logger.Warn().Int("requested", len(playerIDs)).Int("limit", limit).Msg("Warm-up batch truncated")
		playerIDs = playerIDs[:limit]
	}
	return a.cache.WarmUp(ctx, a.cfg.GameID, playerIDs)
}

func (a *Adapter) recordError(op string, err error) {
	kind := gameerr.KindOf(err)
	metrics.RecordAdapterError(a.cfg.GameID, op, string(kind))
	a.logger.Warn().Err(err).Str("operation", op).Str("kind", string(kind)).Msg("Adapter operation failed")
}
