// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package cache

import (
	"sync"
	"time"
)

// DefaultLatencyWindow is the number of get latencies kept for the average.
const DefaultLatencyWindow = 100

// Metrics is a point-in-time snapshot of cache counters.
type Metrics struct {
	Hits            int64         `json:"hits"`
	Misses          int64         `json:"misses"`
	TotalRequests   int64         `json:"totalRequests"`
	Evictions       int64         `json:"evictions"`
	Errors          int64         `json:"errors"`
	HitRate         float64       `json:"hitRate"`
	AvgResponseTime time.Duration `json:"avgResponseTime"`
	Samples         int           `json:"samples"`
}

// stats is guarded by a single mutex so reset is atomic for readers.
type stats struct {
	mu        sync.Mutex
	hits      int64
	misses    int64
	evictions int64
	errors    int64

	window  []time.Duration
	next    int
	filled  int
	sumNano int64
}

func newStats(window int) *stats {
	if window <= 0 {
		window = DefaultLatencyWindow
	}
	return &stats{window: make([]time.Duration, window)}
}

func (s *stats) recordGet(hit bool, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hit {
		s.hits++
	} else {
		s.misses++
	}

	// Ring buffer: overwrite the oldest sample once full.
	if s.filled == len(s.window) {
		s.sumNano -= int64(s.window[s.next])
	} else {
		s.filled++
	}
	s.window[s.next] = d
	s.sumNano += int64(d)
	s.next = (s.next + 1) % len(s.window)
}

func (s *stats) addEvictions(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.evictions += int64(n)
	s.mu.Unlock()
}

func (s *stats) addError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *stats) snapshot() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Metrics{
		Hits:          s.hits,
		Misses:        s.misses,
		TotalRequests: s.hits + s.misses,
		Evictions:     s.evictions,
		Errors:        s.errors,
		Samples:       s.filled,
	}
	if m.TotalRequests > 0 {
		m.HitRate = float64(m.Hits) / float64(m.TotalRequests)
	}
	if s.filled > 0 {
		m.AvgResponseTime = time.Duration(s.sumNano / int64(s.filled))
	}
	return m
}

func (s *stats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hits, s.misses, s.evictions, s.errors = 0, 0, 0, 0
	clear(s.window)
	s.next, s.filled, s.sumNano = 0, 0, 0
}
