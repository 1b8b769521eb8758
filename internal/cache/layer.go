// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

// Package cache is the shared, TTL'd cache every game adapter reads and
// writes through.
//
// Keys are structured (see Key) and serialize deterministically. Values are
// JSON encoded with goccy/go-json and zstd compressed above a threshold.
// Entries can be removed one at a time, by glob pattern, or by firing a
// domain trigger routed through the configured strategies. The backing
// Store is pluggable: in-process memory, Redis, or an embedded Badger.
//
// Backing store failures never reach callers: a failed get is a miss and a
// failed set is dropped, both counted in Metrics.Errors.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/chainplay/internal/logging"
	"github.com/tomtom215/chainplay/internal/metrics"
)

// Config configures a Layer. The store itself is built by the caller.
type Config struct {
	DefaultTTL           time.Duration
	CompressionEnabled   bool
	CompressionThreshold int
	MetricsEnabled       bool
	Strategies           []Strategy
	SweepInterval        time.Duration
	LatencyWindow        int
	WarmUpConcurrency    int
}

// DefaultConfig returns the defaults used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:           5 * time.Minute,
		CompressionEnabled:   true,
		CompressionThreshold: DefaultCompressionThreshold,
		MetricsEnabled:       true,
		Strategies:           DefaultStrategies(),
		SweepInterval:        time.Minute,
		LatencyWindow:        DefaultLatencyWindow,
		WarmUpConcurrency:    8,
	}
}

// Option customizes a Layer.
type Option func(*Layer)

// WithClock replaces time.Now, for TTL tests.
func WithClock(now func() time.Time) Option {
	return func(l *Layer) { l.now = now }
}

// Layer is safe for concurrent use by any number of adapters.
type Layer struct {
	cfg        Config
	store      Store
	codec      *codec
	stats      *stats
	strategies []Strategy
	// ttlRules are the strategies with a TTL override, placeholders widened.
	ttlRules []ttlRule
	now      func() time.Time
	logger   zerolog.Logger

	loadersMu sync.RWMutex
	loaders   map[string]Loader
}

type ttlRule struct {
	pattern string
	ttl     time.Duration
}

// New builds a Layer over store.
func New(store Store, cfg Config, opts ...Option) (*Layer, error) {
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	if cfg.WarmUpConcurrency <= 0 {
		cfg.WarmUpConcurrency = DefaultConfig().WarmUpConcurrency
	}

	l := &Layer{
		cfg:     cfg,
		store:   store,
		stats:   newStats(cfg.LatencyWindow),
		now:     time.Now,
		logger:  logging.WithComponent("cache"),
		loaders: make(map[string]Loader),
	}
	for _, s := range cfg.Strategies {
		if err := s.validate(); err != nil {
			return nil, err
		}
		l.strategies = append(l.strategies, s)
		if s.TTL > 0 {
			l.ttlRules = append(l.ttlRules, ttlRule{pattern: RenderPattern(s.Pattern, nil), ttl: s.TTL})
		}
	}

	c, err := newCodec(cfg.CompressionEnabled, cfg.CompressionThreshold)
	if err != nil {
		return nil, err
	}
	l.codec = c

	for _, opt := range opts {
		opt(l)
	}
	if n, ok := store.(EvictionNotifier); ok {
		n.OnEvict(func(string) {
			l.stats.addEvictions(1)
			l.observeEviction("memory", 1)
		})
	}
	return l, nil
}

// Get decodes the live value stored under key into dest and reports
// whether it was found. Expired entries are reported as a miss and removed
// unless rewritten since the read.
func (l *Layer) Get(ctx context.Context, key Key, dest any) bool {
	start := time.Now()
	k := key.String()
	hit := l.get(ctx, k, dest)

	elapsed := time.Since(start)
	l.stats.recordGet(hit, elapsed)
	if l.cfg.MetricsEnabled {
		metrics.RecordCacheGet(string(key.Type), hit, elapsed)
	}
	return hit
}

func (l *Layer) get(ctx context.Context, k string, dest any) bool {
	now := l.now()
	e, err := l.store.Get(ctx, k, now)
	if err != nil {
		l.recordError("get", err)
		return false
	}
	if e == nil {
		return false
	}
	if e.Expired(now) {
		l.dropExpired(ctx, k, e.CreatedAt)
		return false
	}
	if err := l.codec.decode(e, dest); err != nil {
		l.recordError("decode", err)
		return false
	}
	return true
}

// dropExpired removes an entry found expired on read. Stores without
// ExpiredDeleter expire entries natively or through Sweep.
func (l *Layer) dropExpired(ctx context.Context, k string, createdAt time.Time) {
	d, ok := l.store.(ExpiredDeleter)
	if !ok {
		return
	}
	removed, err := d.DeleteExpired(ctx, k, createdAt)
	if err != nil {
		l.recordError("delete", err)
		return
	}
	if removed {
		l.stats.addEvictions(1)
		l.observeEviction("expired", 1)
	}
}

// Set stores value under key with the default TTL (or a strategy override).
func (l *Layer) Set(ctx context.Context, key Key, value any) {
	l.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores value under key. ttl <= 0 falls back to Set's TTL
// resolution. Failures are recorded, never returned.
func (l *Layer) SetWithTTL(ctx context.Context, key Key, value any, ttl time.Duration) {
	k := key.String()
	if ttl <= 0 {
		ttl = l.ttlFor(k)
	}

	data, compressed, err := l.codec.encode(value)
	if err != nil {
		l.recordError("encode", err)
		return
	}
	now := l.now()
	entry := &Entry{
		Key:          k,
		Value:        data,
		TTL:          ttl,
		CreatedAt:    now,
		LastAccessed: now,
		Compressed:   compressed,
		Size:         len(data) + len(k),
	}
	if err := l.store.Set(ctx, entry); err != nil {
		l.recordError("set", err)
		return
	}
	if compressed && l.cfg.MetricsEnabled {
		metrics.CacheCompressedWrites.Inc()
	}
}

func (l *Layer) ttlFor(k string) time.Duration {
	for _, r := range l.ttlRules {
		if Match(r.pattern, k) {
			return r.ttl
		}
	}
	return l.cfg.DefaultTTL
}

// Delete removes one entry and reports whether it existed.
func (l *Layer) Delete(ctx context.Context, key Key) bool {
	existed, err := l.store.Delete(ctx, key.String())
	if err != nil {
		l.recordError("delete", err)
		return false
	}
	if existed {
		l.stats.addEvictions(1)
		l.observeEviction("delete", 1)
	}
	return existed
}

// InvalidatePattern removes every entry whose serialized key matches the
// glob pattern and returns how many were removed.
func (l *Layer) InvalidatePattern(ctx context.Context, pattern string) int {
	if err := ValidatePattern(pattern); err != nil {
		l.recordError("invalidate", err)
		return 0
	}
	keys, err := l.store.Keys(ctx, pattern)
	if err != nil {
		l.recordError("scan", err)
		return 0
	}

	removed := 0
	for _, k := range keys {
		ok, err := l.store.Delete(ctx, k)
		if err != nil {
			l.recordError("delete", err)
			continue
		}
		if ok {
			removed++
		}
	}
	l.stats.addEvictions(removed)
	l.observeEviction("invalidate", removed)
	l.logger.Debug().Str("pattern", pattern).Int("removed", removed).Msg("Invalidated cache pattern")
	return removed
}

// InvalidateByTrigger renders every strategy reacting to trigger with vars
// (gameId, playerId, assetId, ...) and invalidates the resulting patterns.
// It returns the total number of entries removed.
func (l *Layer) InvalidateByTrigger(ctx context.Context, trigger string, vars map[string]string) int {
	total := 0
	for _, s := range l.strategies {
		if !s.Handles(trigger) {
			continue
		}
		total += l.InvalidatePattern(ctx, RenderPattern(s.Pattern, vars))
	}
	if l.cfg.MetricsEnabled && total > 0 {
		metrics.CacheInvalidations.WithLabelValues(trigger).Add(float64(total))
	}
	return total
}

// Strategies returns the configured strategies.
func (l *Layer) Strategies() []Strategy {
	out := make([]Strategy, len(l.strategies))
	copy(out, l.strategies)
	return out
}

// GetMetrics returns the current counters, hit rate and average latency.
func (l *Layer) GetMetrics() Metrics {
	return l.stats.snapshot()
}

// ResetMetrics zeroes every counter and clears the latency window.
func (l *Layer) ResetMetrics() {
	l.stats.reset()
}

// Sweep purges expired entries from stores that need it.
func (l *Layer) Sweep(ctx context.Context) int {
	sw, ok := l.store.(Sweeper)
	if !ok {
		return 0
	}
	n, err := sw.Sweep(ctx, l.now())
	if err != nil {
		l.recordError("sweep", err)
		return 0
	}
	l.stats.addEvictions(n)
	l.observeEviction("expired", n)
	return n
}

// Serve runs the periodic sweep until ctx is done. It makes the Layer a
// suture.Service.
func (l *Layer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := l.Sweep(ctx); n > 0 {
				l.logger.Debug().Int("removed", n).Msg("Swept expired cache entries")
			}
		}
	}
}

// String names the service in supervisor logs.
func (l *Layer) String() string {
	return "cache-sweeper"
}

// Close releases the store and codec.
func (l *Layer) Close() error {
	l.codec.close()
	return l.store.Close()
}

func (l *Layer) recordError(op string, err error) {
	l.stats.addError()
	if l.cfg.MetricsEnabled {
		metrics.CacheErrors.WithLabelValues(op).Inc()
	}
	l.logger.Warn().Err(err).Str("operation", op).Msg("Cache store operation failed")
}

func (l *Layer) observeEviction(reason string, n int) {
	if l.cfg.MetricsEnabled && n > 0 {
		metrics.CacheEvictions.WithLabelValues(reason).Add(float64(n))
	}
}
