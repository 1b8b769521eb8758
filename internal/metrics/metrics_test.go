// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// sampleCount reads a histogram's observation count.
func sampleCount(t *testing.T, h prometheus.Metric) uint64 {
	t.Helper()
	m := &dto.Metric{}
	if err := h.Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestRecordCacheGet(t *testing.T) {
	hitsBefore := testutil.ToFloat64(CacheRequests.WithLabelValues("player_data", "hit"))
	missBefore := testutil.ToFloat64(CacheRequests.WithLabelValues("player_data", "miss"))

	RecordCacheGet("player_data", true, time.Millisecond)
	RecordCacheGet("player_data", false, time.Millisecond)
	RecordCacheGet("player_data", false, time.Millisecond)

	if got := testutil.ToFloat64(CacheRequests.WithLabelValues("player_data", "hit")) - hitsBefore; got != 1 {
		t.Errorf("hits delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(CacheRequests.WithLabelValues("player_data", "miss")) - missBefore; got != 2 {
		t.Errorf("misses delta = %v, want 2", got)
	}
}

func TestRecordCacheGetObservesLatency(t *testing.T) {
	before := sampleCount(t, CacheGetDuration)
	RecordCacheGet("statistics", true, 3*time.Millisecond)
	if got := sampleCount(t, CacheGetDuration) - before; got != 1 {
		t.Errorf("latency samples delta = %d, want 1", got)
	}
}

func TestAPIRequestDurationLabels(t *testing.T) {
	obs := APIRequestDuration.WithLabelValues("GET", "/health/live", "200")
	before := sampleCount(t, obs.(prometheus.Metric))
	obs.Observe(0.01)
	if got := sampleCount(t, obs.(prometheus.Metric)) - before; got != 1 {
		t.Errorf("samples delta = %d, want 1", got)
	}
}

func TestRecordSync(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	RecordSync("metrics-test", at)

	if got := testutil.ToFloat64(AdapterLastSync.WithLabelValues("metrics-test")); got != float64(at.Unix()) {
		t.Errorf("last sync = %v, want %v", got, at.Unix())
	}
}

func TestRecordAdapterErrorAndPush(t *testing.T) {
	RecordAdapterError("metrics-test", "fetchPlayerData", "timeout")
	RecordPushEvent("metrics-test", "dropped")

	if got := testutil.ToFloat64(AdapterErrors.WithLabelValues("metrics-test", "fetchPlayerData", "timeout")); got < 1 {
		t.Errorf("adapter errors = %v, want >= 1", got)
	}
	if got := testutil.ToFloat64(AdapterPushEvents.WithLabelValues("metrics-test", "dropped")); got < 1 {
		t.Errorf("push events = %v, want >= 1", got)
	}
}
