// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// BadgerConfig selects an on-disk directory or a purely in-memory instance.
type BadgerConfig struct {
	Path     string
	InMemory bool
}

// BadgerStore is an embedded Store using Badger's native per-key TTL.
// Nothing is durable in the sense of a system of record: the directory is a
// warm restart aid only.
type BadgerStore struct {
	db *badger.DB
}

type badgerEnvelope struct {
	Value        []byte        `json:"v"`
	Compressed   bool          `json:"c"`
	CreatedAt    time.Time     `json:"ca"`
	LastAccessed time.Time     `json:"la"`
	AccessCount  int64         `json:"n"`
	TTL          time.Duration `json:"ttl"`
	Size         int           `json:"sz"`
}

// OpenBadger opens (or creates) a Badger store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Get implements Store. Access stats are rewritten in the same transaction;
// when that write conflicts with a concurrent reader the entry is still
// returned, just without the stat bump.
func (s *BadgerStore) Get(_ context.Context, key string, at time.Time) (*Entry, error) {
	var found *Entry
	err := s.db.Update(func(txn *badger.Txn) error {
		item, env, err := readEnvelope(txn, key)
		if err != nil || env == nil {
			return err
		}
		env.AccessCount++
		env.LastAccessed = at
		found = env.entry(key)

		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		e := badger.NewEntry([]byte(key), data)
		e.ExpiresAt = item.ExpiresAt()
		return txn.SetEntry(e)
	})
	if errors.Is(err, badger.ErrConflict) {
		err = s.db.View(func(txn *badger.Txn) error {
			_, env, rerr := readEnvelope(txn, key)
			if rerr != nil || env == nil {
				found = nil
				return rerr
			}
			found = env.entry(key)
			return nil
		})
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	return found, nil
}

func readEnvelope(txn *badger.Txn, key string) (*badger.Item, *badgerEnvelope, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var env badgerEnvelope
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &env)
	}); err != nil {
		return nil, nil, err
	}
	return item, &env, nil
}

func (env *badgerEnvelope) entry(key string) *Entry {
	return &Entry{
		Key:          key,
		Value:        env.Value,
		Compressed:   env.Compressed,
		CreatedAt:    env.CreatedAt,
		LastAccessed: env.LastAccessed,
		AccessCount:  env.AccessCount,
		TTL:          env.TTL,
		Size:         env.Size,
	}
}

// Set implements Store.
func (s *BadgerStore) Set(_ context.Context, entry *Entry) error {
	data, err := json.Marshal(badgerEnvelope{
		Value:        entry.Value,
		Compressed:   entry.Compressed,
		CreatedAt:    entry.CreatedAt,
		LastAccessed: entry.LastAccessed,
		AccessCount:  entry.AccessCount,
		TTL:          entry.TTL,
		Size:         entry.Size,
	})
	if err != nil {
		return fmt.Errorf("encode badger entry %s: %w", entry.Key, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(entry.Key), data)
		if entry.TTL > 0 {
			e = e.WithTTL(entry.TTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", entry.Key, err)
	}
	return nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(_ context.Context, key string) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return false, fmt.Errorf("badger delete %s: %w", key, err)
	}
	return existed, nil
}

// Keys implements Store.
func (s *BadgerStore) Keys(_ context.Context, pattern string) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(literalPrefix(pattern))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := string(it.Item().KeyCopy(nil))
			if Match(pattern, k) {
				out = append(out, k)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger scan %s: %w", pattern, err)
	}
	return out, nil
}

// Sweep reclaims value log space. Expiry itself is enforced by Badger, so
// the removed count is always zero.
func (s *BadgerStore) Sweep(_ context.Context, _ time.Time) (int, error) {
	err := s.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		return 0, fmt.Errorf("badger value log gc: %w", err)
	}
	return 0, nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var (
	_ Store   = (*BadgerStore)(nil)
	_ Sweeper = (*BadgerStore)(nil)
)
