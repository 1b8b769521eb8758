// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package cache

import (
	"context"
	"errors"
	"time"
)

// Entry is one stored value plus its bookkeeping. Value holds the encoded
// (and possibly compressed) bytes; the Layer owns encoding.
type Entry struct {
	Key          string
	Value        []byte
	TTL          time.Duration
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int64
	Compressed   bool
	Size         int
}

// ExpiresAt is CreatedAt + TTL.
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// Expired reports whether the entry is stale at now. An entry is live for
// the half-open interval [CreatedAt, CreatedAt+TTL).
func (e *Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.ExpiresAt())
}

// ErrEntryTooLarge is returned by stores with a memory budget when a single
// entry exceeds the whole budget.
var ErrEntryTooLarge = errors.New("cache entry exceeds memory budget")

// Store is the backing key/value store behind a Layer.
//
// Get returns (nil, nil) for an absent key and records the access (at, +1
// count) on a present one. Stores may keep expired entries around; the
// Layer checks Entry.Expired on every read and reports those as misses.
type Store interface {
	Get(ctx context.Context, key string, at time.Time) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) (bool, error)
	// Keys lists stored keys matching a glob pattern (see Match).
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// Sweeper is implemented by stores that need the Layer to purge expired
// entries periodically.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// ExpiredDeleter is implemented by stores that keep expired entries until
// they are removed. DeleteExpired removes key only if the stored entry is
// still the one created at createdAt, so a value rewritten after the read
// survives.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, key string, createdAt time.Time) (bool, error)
}

// EvictionNotifier is implemented by stores that evict on their own (for
// example under memory pressure) so the Layer can count those evictions.
type EvictionNotifier interface {
	OnEvict(fn func(key string))
}
