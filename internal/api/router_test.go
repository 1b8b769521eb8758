// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/chainplay/internal/adapter"
	"github.com/tomtom215/chainplay/internal/cache"
	"github.com/tomtom215/chainplay/internal/games"
)

// ========================================
// Test fixtures
// ========================================

type fixture struct {
	router   http.Handler
	layer    *cache.Layer
	registry *games.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/players/p1":
			_, _ = w.Write([]byte(`{"assets":[{"id":"sword","type":"equipment","rarity":"rare"}],"statistics":{"level":7}}`))
		case "/players/p2":
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	layer, err := cache.New(cache.NewMemoryStore(0), cache.DefaultConfig())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { _ = layer.Close() })

	cfg := adapter.DefaultConfig()
	cfg.GameID = "zeta"
	cfg.RPCEndpoint = upstream.URL
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	cfg.RequestsPerSecond = 0

	reg, err := games.NewRegistry([]adapter.Config{cfg}, layer)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return &fixture{router: NewRouter(NewHandler(reg, layer)), layer: layer, registry: reg}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var resp APIResponse
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
		}
	}
	return rec, resp
}

// ========================================
// Health
// ========================================

func TestHealthLive(t *testing.T) {
	f := newFixture(t)
	rec, resp := f.do(t, http.MethodGet, "/health/live", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status = %d, resp = %+v", rec.Code, resp)
	}
	if resp.Meta.RequestID == "" {
		t.Error("response should carry the request ID")
	}
}

func TestHealthReady(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/health/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before any sync = %d, want 503", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("error = %+v", resp.Error)
	}

	if failed := f.registry.CheckHealth(context.Background()); len(failed) != 0 {
		t.Fatalf("CheckHealth failures: %v", failed)
	}
	rec, _ = f.do(t, http.MethodGet, "/health/ready", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status after health check = %d, want 200", rec.Code)
	}
}

// ========================================
// Games
// ========================================

func TestListGames(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodGet, "/api/v1/games/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"gameId":"zeta"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestGetPlayer(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/v1/games/zeta/players/p1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"id":"sword"`) || !strings.Contains(body, `"level":7`) {
		t.Errorf("body = %s", body)
	}

	rec, resp := f.do(t, http.MethodGet, "/api/v1/games/zeta/players/ghost", "")
	if rec.Code != http.StatusNotFound || resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Errorf("missing player: status = %d, error = %+v", rec.Code, resp.Error)
	}

	rec, _ = f.do(t, http.MethodGet, "/api/v1/games/unknown/players/p1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown game status = %d, want 404", rec.Code)
	}
}

func TestWarmUp(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/api/v1/games/zeta/warmup", `{"playerIds":["p1","p2","ghost"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Data struct {
			Requested     int      `json:"requested"`
			Loaded        int      `json:"loaded"`
			FailedPlayers []string `json:"failedPlayers"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Data.Requested != 3 || out.Data.Loaded != 2 {
		t.Errorf("report = %+v", out.Data)
	}
	if len(out.Data.FailedPlayers) != 1 || out.Data.FailedPlayers[0] != "ghost" {
		t.Errorf("failed players = %v", out.Data.FailedPlayers)
	}

	var cached any
	if !f.layer.Get(context.Background(), cache.PlayerDataKey("zeta", "p1"), &cached) {
		t.Error("p1 should be cached after warm-up")
	}
}

func TestWarmUpValidation(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{`{"playerIds":[]}`, `{"playerIds":[""]}`, `not json`, `{"ids":["p1"]}`} {
		rec, resp := f.do(t, http.MethodPost, "/api/v1/games/zeta/warmup", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
		if resp.Success {
			t.Errorf("body %q: success should be false", body)
		}
	}
}

// ========================================
// Cache administration
// ========================================

func TestCacheMetricsAndReset(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/games/zeta/players/p1", "")
	f.do(t, http.MethodGet, "/api/v1/games/zeta/players/p1", "")

	if m := f.layer.GetMetrics(); m.Hits == 0 || m.Misses == 0 {
		t.Fatalf("metrics = %+v, want hits and misses", m)
	}
	rec, _ := f.do(t, http.MethodGet, "/api/v1/cache/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"hitRate"`) {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/cache/metrics", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("reset status = %d, want 204", rec.Code)
	}
	if m := f.layer.GetMetrics(); m.TotalRequests != 0 {
		t.Errorf("metrics after reset = %+v", m)
	}
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("by trigger", func(t *testing.T) {
		f.do(t, http.MethodGet, "/api/v1/games/zeta/players/p1", "")
		rec, _ := f.do(t, http.MethodPost, "/api/v1/cache/invalidate",
			`{"trigger":"`+cache.TriggerAssetTransfer+`","gameId":"zeta","playerId":"p1"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var v any
		if f.layer.Get(ctx, cache.AssetsKey("zeta", "p1"), &v) {
			t.Error("assets entry should be invalidated")
		}
		if !f.layer.Get(ctx, cache.AchievementsKey("zeta", "p1"), &v) {
			t.Error("achievements entry is not routed from asset_transfer and should survive")
		}
	})

	t.Run("by pattern", func(t *testing.T) {
		f.do(t, http.MethodGet, "/api/v1/games/zeta/players/p1", "")
		rec, _ := f.do(t, http.MethodPost, "/api/v1/cache/invalidate", `{"pattern":"*:zeta:*"}`)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"removed":`) {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var v any
		if f.layer.Get(ctx, cache.PlayerDataKey("zeta", "p1"), &v) {
			t.Error("player entry should be invalidated")
		}
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		for _, body := range []string{
			`{}`,
			`{"trigger":"asset_transfer","pattern":"*"}`,
			`{"pattern":"[unclosed"}`,
			`{"trigger":"asset_transfer","gameId":"Not A Game"}`,
		} {
			rec, _ := f.do(t, http.MethodPost, "/api/v1/cache/invalidate", body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("body %s: status = %d, want 400", body, rec.Code)
			}
		}
	})
}

func TestCacheStrategies(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodGet, "/api/v1/cache/strategies", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"player-assets"`) {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/health/live", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chainplay_api_request_duration_seconds") {
		t.Error("scrape should include the API latency histogram")
	}
}
