// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/chainplay/internal/gameerr"
	"github.com/tomtom215/chainplay/internal/models"
)

// pushServer hands every accepted websocket to the test.
type pushServer struct {
	server    *httptest.Server
	conns     chan *websocket.Conn
	accepting atomic.Bool
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{conns: make(chan *websocket.Conn, 8)}
	ps.accepting.Store(true)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ps.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ps.accepting.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.conns <- conn
		// Drain control messages until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ps.server.Close)
	return ps
}

func (ps *pushServer) url() string {
	return "ws" + strings.TrimPrefix(ps.server.URL, "http")
}

func (ps *pushServer) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ps.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection")
		return nil
	}
}

func TestAdapter_PushEndToEnd(t *testing.T) {
	ps := newPushServer(t)
	src := newFakeSource("g", alwaysReturn(RawRecord{}))
	layer, _ := newTestLayer(t)

	cfg := testAdapterConfig("g")
	cfg.WSEndpoint = ps.url()
	a := newTestAdapter(t, cfg, src, layer)

	updates := make(chan *models.PlayerRecord, 4)
	a.SubscribeToUpdates(func(r *models.PlayerRecord) { updates <- r })

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(ctx)
	server := ps.next(t)

	if err := a.SubscribePlayer("p1"); err != nil {
		t.Fatalf("SubscribePlayer: %v", err)
	}

	frames := []string{
		`{"type":"PLAYER_UPDATE","playerId":"ghost","data":{}}`,
		`{"type":"PLAYER_UPDATE","playerId":"p1","data":{"assets":[{"id":"a1","type":"currency"}]}}`,
	}
	for _, f := range frames {
		if err := server.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	select {
	case rec := <-updates:
		if rec.PlayerID != "p1" || len(rec.Assets) != 1 || rec.Assets[0].Type != models.AssetTypeCurrency {
			t.Errorf("update = %+v", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update delivered")
	}
	select {
	case rec := <-updates:
		t.Errorf("unexpected extra update for %s", rec.PlayerID)
	case <-time.After(50 * time.Millisecond):
	}

	st := a.ConnectionStatus()
	if !st.Connected || st.SubscribedPlayers != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestAdapter_ServeReturnsWhenPushGivesUp(t *testing.T) {
	ps := newPushServer(t)
	src := newFakeSource("g", alwaysReturn(RawRecord{}))

	cfg := testAdapterConfig("g")
	cfg.WSEndpoint = ps.url()
	cfg.Realtime = RealtimeConfig{
		ReconnectInterval:    5 * time.Millisecond,
		MaxReconnectInterval: 10 * time.Millisecond,
		MaxReconnectAttempts: 1,
	}
	a := newTestAdapter(t, cfg, src, nil)

	errc := make(chan error, 1)
	go func() { errc <- a.Serve(context.Background()) }()

	server := ps.next(t)
	ps.accepting.Store(false)
	_ = server.Close()

	select {
	case err := <-errc:
		if gameerr.KindOf(err) != gameerr.KindConnection {
			t.Errorf("Serve error = %v, want connection kind", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after reconnects were exhausted")
	}
}

func TestAdapter_StartFailsWhenSourceUnreachable(t *testing.T) {
	src := newFakeSource("g", alwaysReturn(RawRecord{}))
	src.connectErr = context.DeadlineExceeded
	cfg := testAdapterConfig("g")
	cfg.Retry.MaxRetries = 0
	a := newTestAdapter(t, cfg, src, nil)

	err := a.Start(context.Background())
	if gameerr.KindOf(err) != gameerr.KindTimeout {
		t.Errorf("Start error = %v, want timeout kind", err)
	}
}
