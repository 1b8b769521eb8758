// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process Store. Entries are kept in access order so
// that, when maxBytes is set, the least recently accessed entries are
// evicted first.
type MemoryStore struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front is most recently accessed
	used     int64
	maxBytes int64
	onEvict  func(key string)
}

// NewMemoryStore creates a store; maxBytes <= 0 means unbounded.
func NewMemoryStore(maxBytes int64) *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		maxBytes: maxBytes,
	}
}

// OnEvict registers a callback for budget evictions. It runs with the store
// lock held and must not call back into the store.
func (s *MemoryStore) OnEvict(fn func(key string)) {
	s.mu.Lock()
	s.onEvict = fn
	s.mu.Unlock()
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string, at time.Time) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	e := el.Value.(*Entry)
	e.AccessCount++
	e.LastAccessed = at
	s.order.MoveToFront(el)

	cp := *e
	return &cp, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, entry *Entry) error {
	if s.maxBytes > 0 && int64(entry.Size) > s.maxBytes {
		return ErrEntryTooLarge
	}
	cp := *entry

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[cp.Key]; ok {
		s.used -= int64(el.Value.(*Entry).Size)
		el.Value = &cp
		s.order.MoveToFront(el)
	} else {
		s.items[cp.Key] = s.order.PushFront(&cp)
	}
	s.used += int64(cp.Size)

	for s.maxBytes > 0 && s.used > s.maxBytes && s.order.Len() > 1 {
		oldest := s.order.Back()
		evicted := s.removeLocked(oldest)
		if s.onEvict != nil {
			s.onEvict(evicted.Key)
		}
	}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return false, nil
	}
	s.removeLocked(el)
	return true, nil
}

// DeleteExpired implements ExpiredDeleter.
func (s *MemoryStore) DeleteExpired(_ context.Context, key string, createdAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok || !el.Value.(*Entry).CreatedAt.Equal(createdAt) {
		return false, nil
	}
	s.removeLocked(el)
	return true, nil
}

// Keys implements Store.
func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for k := range s.items {
		if Match(pattern, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Sweep removes entries that are expired at now.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, el := range s.items {
		if el.Value.(*Entry).Expired(now) {
			s.removeLocked(el)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// UsedBytes returns the summed Size of stored entries.
func (s *MemoryStore) UsedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element)
	s.order.Init()
	s.used = 0
	return nil
}

func (s *MemoryStore) removeLocked(el *list.Element) *Entry {
	e := el.Value.(*Entry)
	s.order.Remove(el)
	delete(s.items, e.Key)
	s.used -= int64(e.Size)
	return e
}

var (
	_ Store            = (*MemoryStore)(nil)
	_ Sweeper          = (*MemoryStore)(nil)
	_ EvictionNotifier = (*MemoryStore)(nil)
	_ ExpiredDeleter   = (*MemoryStore)(nil)
)
