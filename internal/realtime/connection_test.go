// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/chainplay/internal/gameerr"
)

// receivedMessage is a control message seen by the mock server, tagged with
// the 1-based index of the connection it arrived on.
type receivedMessage struct {
	conn int
	msg  controlMessage
}

// mockPushServer simulates a game push endpoint.
type mockPushServer struct {
	server    *httptest.Server
	upgrader  websocket.Upgrader
	accepting atomic.Bool
	requests  atomic.Int32
	upgrades  atomic.Int32
	conns     chan *websocket.Conn
	received  chan receivedMessage
}

func newMockPushServer(t *testing.T) *mockPushServer {
	t.Helper()
	mock := &mockPushServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		conns:    make(chan *websocket.Conn, 16),
		received: make(chan receivedMessage, 256),
	}
	mock.accepting.Store(true)

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.requests.Add(1)
		if !mock.accepting.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := mock.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		idx := int(mock.upgrades.Add(1))
		mock.conns <- conn

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg controlMessage
			if json.Unmarshal(data, &msg) == nil {
				mock.received <- receivedMessage{conn: idx, msg: msg}
			}
		}
	}))
	t.Cleanup(mock.server.Close)
	return mock
}

func (m *mockPushServer) url() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http") + "/push"
}

// nextConn returns the next server-side connection.
func (m *mockPushServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-m.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a client connection")
		return nil
	}
}

// expectMessage waits for a control message matching want on connection idx.
func (m *mockPushServer) expectMessage(t *testing.T, idx int, kind, playerID string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case rm := <-m.received:
			if rm.conn == idx && rm.msg.Type == kind && rm.msg.PlayerID == playerID {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s(%q) on connection %d", kind, playerID, idx)
		}
	}
}

// eventRecorder collects handler events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan Event, 256)}
}

func (r *eventRecorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.ch <- ev:
	default:
	}
}

func (r *eventRecorder) next(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return Event{}
		}
	}
}

func (r *eventRecorder) count(match func(Event) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if match(ev) {
			n++
		}
	}
	return n
}

func isTerminal(ev Event) bool { return ev.Type == EventError && ev.Terminal }

func waitForState(t *testing.T, c *Connection, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.State(), want)
}

func testConfig(endpoint string) Config {
	return Config{
		GameID:               "chainquest",
		Endpoint:             endpoint,
		ReconnectInterval:    10 * time.Millisecond,
		MaxReconnectInterval: 40 * time.Millisecond,
		MaxReconnectAttempts: 3,
		HeartbeatInterval:    time.Hour,
		MessageTimeout:       5 * time.Second,
	}
}

// ============================================================================
// Connect / Disconnect
// ============================================================================

func TestConnection_ConnectIsIdempotent(t *testing.T) {
	mock := newMockPushServer(t)
	c := New(testConfig(mock.url()))
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	mock.nextConn(t)

	time.Sleep(50 * time.Millisecond)
	if got := mock.upgrades.Load(); got != 1 {
		t.Errorf("server saw %d connections, want 1", got)
	}
	if got := c.State(); got != StateConnected {
		t.Errorf("state = %s, want connected", got)
	}
}

func TestConnection_DisconnectMovesToClosed(t *testing.T) {
	mock := newMockPushServer(t)
	c := New(testConfig(mock.url()))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mock.nextConn(t)

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if got := c.State(); got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
	if c.Status().Connected {
		t.Error("Status reports connected after Disconnect")
	}

	time.Sleep(50 * time.Millisecond)
	if got := mock.upgrades.Load(); got != 1 {
		t.Errorf("reconnected after Disconnect: %d connections", got)
	}
}

func TestConnection_ConnectAfterCloseStartsNewLifecycle(t *testing.T) {
	mock := newMockPushServer(t)
	c := New(testConfig(mock.url()))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mock.nextConn(t)
	_ = c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect after Disconnect: %v", err)
	}
	mock.nextConn(t)
	if got := c.State(); got != StateConnected {
		t.Errorf("state = %s, want connected", got)
	}
}

func TestConnection_ConnectFailsAfterAttemptsExhausted(t *testing.T) {
	mock := newMockPushServer(t)
	mock.accepting.Store(false)

	rec := newEventRecorder()
	cfg := testConfig(mock.url())
	cfg.MaxReconnectAttempts = 2
	c := New(cfg)
	c.SetHandler(rec.handle)

	err := c.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect succeeded against a rejecting endpoint")
	}
	if kind := gameerr.KindOf(err); kind != gameerr.KindConnection {
		t.Errorf("error kind = %s, want connection", kind)
	}
	if got := mock.requests.Load(); got != 3 {
		t.Errorf("dial attempts = %d, want 3 (initial + 2 reconnects)", got)
	}
	if got := c.State(); got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
	if got := rec.count(isTerminal); got != 1 {
		t.Errorf("terminal events = %d, want 1", got)
	}
}

func TestConnection_DisconnectInterruptsBackoff(t *testing.T) {
	mock := newMockPushServer(t)
	mock.accepting.Store(false)

	cfg := testConfig(mock.url())
	cfg.ReconnectInterval = time.Hour
	cfg.MaxReconnectInterval = time.Hour
	c := New(cfg)

	errc := make(chan error, 1)
	go func() { errc <- c.Connect(context.Background()) }()

	waitForState(t, c, StateReconnecting)
	_ = c.Disconnect()

	select {
	case err := <-errc:
		if err == nil {
			t.Error("Connect returned nil after Disconnect")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after Disconnect")
	}
	if got := c.State(); got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestConnection_ConnectHonorsContext(t *testing.T) {
	mock := newMockPushServer(t)
	mock.accepting.Store(false)

	cfg := testConfig(mock.url())
	cfg.ReconnectInterval = time.Hour
	cfg.MaxReconnectInterval = time.Hour
	c := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Connect(ctx)
	if kind := gameerr.KindOf(err); kind != gameerr.KindConnection {
		t.Fatalf("error = %v, want connection kind", err)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
}

// ============================================================================
// Reconnect
// ============================================================================

func TestConnection_ResubscribesAfterReconnect(t *testing.T) {
	mock := newMockPushServer(t)
	c := New(testConfig(mock.url()))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	first := mock.nextConn(t)

	for _, id := range []string{"p2", "p1"} {
		if err := c.SubscribeToPlayer(id); err != nil {
			t.Fatalf("SubscribeToPlayer(%s): %v", id, err)
		}
	}
	mock.expectMessage(t, 1, controlSubscribe, "p2")
	mock.expectMessage(t, 1, controlSubscribe, "p1")

	_ = first.Close()
	mock.nextConn(t)

	mock.expectMessage(t, 2, controlSubscribe, "p1")
	mock.expectMessage(t, 2, controlSubscribe, "p2")
	waitForState(t, c, StateConnected)

	if got := c.Status().ReconnectAttempts; got != 0 {
		t.Errorf("reconnect attempts after success = %d, want 0", got)
	}
}

func TestConnection_ReconnectCapEmitsOneTerminalError(t *testing.T) {
	mock := newMockPushServer(t)
	rec := newEventRecorder()
	c := New(testConfig(mock.url()))
	c.SetHandler(rec.handle)
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := mock.nextConn(t)

	mock.accepting.Store(false)
	_ = conn.Close()

	ev := rec.next(t, isTerminal)
	if kind := gameerr.KindOf(ev.Err); kind != gameerr.KindConnection {
		t.Errorf("terminal error kind = %s, want connection", kind)
	}
	waitForState(t, c, StateClosed)

	time.Sleep(150 * time.Millisecond)
	if got := mock.requests.Load(); got != 4 {
		t.Errorf("requests = %d, want 4 (1 connect + 3 reconnects)", got)
	}
	if got := rec.count(isTerminal); got != 1 {
		t.Errorf("terminal events = %d, want 1", got)
	}
}

func TestConnection_MessageTimeoutTriggersReconnect(t *testing.T) {
	mock := newMockPushServer(t)
	rec := newEventRecorder()
	cfg := testConfig(mock.url())
	cfg.MessageTimeout = 100 * time.Millisecond
	c := New(cfg)
	c.SetHandler(rec.handle)
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mock.nextConn(t)

	ev := rec.next(t, func(ev Event) bool { return ev.Type == EventError })
	if kind := gameerr.KindOf(ev.Err); kind != gameerr.KindTimeout {
		t.Errorf("error kind = %s, want timeout", kind)
	}
	if ev.Terminal {
		t.Error("silence should not be terminal")
	}
	mock.nextConn(t)
}

func TestConnection_Backoff(t *testing.T) {
	c := New(Config{
		GameID:               "g",
		ReconnectInterval:    100 * time.Millisecond,
		MaxReconnectInterval: time.Second,
		BackoffMultiplier:    2,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{60, time.Second},
	}
	for _, tt := range tests {
		if got := c.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

// ============================================================================
// Frames
// ============================================================================

func TestConnection_DeliversTypedEvents(t *testing.T) {
	mock := newMockPushServer(t)
	rec := newEventRecorder()
	c := New(testConfig(mock.url()))
	c.SetHandler(rec.handle)
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := mock.nextConn(t)

	frame := `{"type":"ASSET_CHANGE","playerId":"p1","timestamp":1700000000000,"delta":true,"data":{"assetId":"a1"}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}

	ev := rec.next(t, func(ev Event) bool { return ev.Type == EventAssetChange })
	if ev.PlayerID != "p1" || ev.GameID != "chainquest" {
		t.Errorf("event = %+v", ev)
	}
	if !ev.Delta {
		t.Error("Delta = false, want true")
	}
	if !ev.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("Timestamp = %v", ev.Timestamp)
	}
	if string(ev.Data) != `{"assetId":"a1"}` {
		t.Errorf("Data = %s", ev.Data)
	}
}

func TestConnection_MalformedFramesBecomeErrorEvents(t *testing.T) {
	mock := newMockPushServer(t)
	rec := newEventRecorder()
	c := New(testConfig(mock.url()))
	c.SetHandler(rec.handle)
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := mock.nextConn(t)

	bad := []string{
		`not json`,
		`{"type":"TELEPORT","playerId":"p1"}`,
		`{"type":"PLAYER_UPDATE"}`,
	}
	for _, f := range bad {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("write: %v", err)
		}
		ev := rec.next(t, func(ev Event) bool { return ev.Type == EventError })
		if kind := gameerr.KindOf(ev.Err); kind != gameerr.KindValidation {
			t.Errorf("frame %q: error kind = %s, want validation", f, kind)
		}
	}

	if got := c.State(); got != StateConnected {
		t.Errorf("state = %s, want connected", got)
	}

	// The connection keeps delivering after bad input.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HEARTBEAT"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec.next(t, func(ev Event) bool { return ev.Type == EventHeartbeat })
	if got := mock.upgrades.Load(); got != 1 {
		t.Errorf("connections = %d, want 1", got)
	}
}

func TestConnection_ServerErrorFrame(t *testing.T) {
	mock := newMockPushServer(t)
	rec := newEventRecorder()
	c := New(testConfig(mock.url()))
	c.SetHandler(rec.handle)
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := mock.nextConn(t)
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ERROR","message":"indexer lagging"}`))

	ev := rec.next(t, func(ev Event) bool { return ev.Type == EventError })
	if kind := gameerr.KindOf(ev.Err); kind != gameerr.KindDataSource {
		t.Errorf("error kind = %s, want data_source", kind)
	}
	if !strings.Contains(ev.Err.Error(), "indexer lagging") {
		t.Errorf("error = %v", ev.Err)
	}
}

// ============================================================================
// Subscriptions and heartbeat
// ============================================================================

func TestConnection_SubscribeWhileDisconnected(t *testing.T) {
	c := New(testConfig("ws://127.0.0.1:1/unused"))

	if err := c.SubscribeToPlayer("p1"); err != nil {
		t.Fatalf("SubscribeToPlayer: %v", err)
	}
	if !c.IsSubscribed("p1") {
		t.Error("p1 not subscribed")
	}
	if err := c.SubscribeToPlayer(""); gameerr.KindOf(err) != gameerr.KindValidation {
		t.Errorf("empty player id: err = %v, want validation", err)
	}

	st := c.Status()
	if st.Connected || st.SubscribedPlayers != 1 || st.State != StateDisconnected || st.GameID != "chainquest" {
		t.Errorf("Status = %+v", st)
	}

	if err := c.UnsubscribeFromPlayer("p1"); err != nil {
		t.Fatalf("UnsubscribeFromPlayer: %v", err)
	}
	if len(c.Subscriptions()) != 0 {
		t.Errorf("Subscriptions = %v, want empty", c.Subscriptions())
	}
}

func TestConnection_UnsubscribeSendsControlMessage(t *testing.T) {
	mock := newMockPushServer(t)
	c := New(testConfig(mock.url()))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mock.nextConn(t)

	_ = c.SubscribeToPlayer("p1")
	mock.expectMessage(t, 1, controlSubscribe, "p1")
	if err := c.UnsubscribeFromPlayer("p1"); err != nil {
		t.Fatalf("UnsubscribeFromPlayer: %v", err)
	}
	mock.expectMessage(t, 1, controlUnsubscribe, "p1")
	if c.IsSubscribed("p1") {
		t.Error("p1 still subscribed")
	}
}

func TestConnection_SendsHeartbeats(t *testing.T) {
	mock := newMockPushServer(t)
	cfg := testConfig(mock.url())
	cfg.HeartbeatInterval = 20 * time.Millisecond
	c := New(cfg)
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mock.nextConn(t)
	mock.expectMessage(t, 1, controlHeartbeat, "")
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
		ok   bool
	}{
		{"rfc3339", `"2026-01-02T03:04:05Z"`, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{"unix millis", `1700000000123`, time.UnixMilli(1700000000123), true},
		{"missing", ``, time.Time{}, false},
		{"null", `null`, time.Time{}, false},
		{"garbage", `"yesterday"`, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseTimestamp(json.RawMessage(tt.raw))
			if ok != tt.ok || !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%s) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.ok)
			}
		})
	}
}
