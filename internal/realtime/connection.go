// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

// Package realtime maintains one resilient push connection per game.
//
// A Connection dials the game's websocket endpoint, keeps it alive with a
// heartbeat, treats silence longer than MessageTimeout as a dead link, and
// reconnects with exponential backoff up to MaxReconnectAttempts before
// giving up in the terminal Closed state. Player subscriptions survive
// reconnects: the whole set is resent whenever the connection reaches
// Connected.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/chainplay/internal/gameerr"
	"github.com/tomtom215/chainplay/internal/logging"
	"github.com/tomtom215/chainplay/internal/metrics"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in status payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config configures a Connection.
type Config struct {
	GameID               string
	Endpoint             string
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	BackoffMultiplier    float64
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	MessageTimeout       time.Duration
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	Header               http.Header
}

func (c *Config) applyDefaults() {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = time.Second
	}
	if c.MaxReconnectInterval <= 0 {
		c.MaxReconnectInterval = 32 * time.Second
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = 2
	}
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 0
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = 60 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// Status is the diagnostics snapshot of a connection.
type Status struct {
	Connected         bool   `json:"connected"`
	GameID            string `json:"gameId"`
	SubscribedPlayers int    `json:"subscribedPlayers"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
	State             State  `json:"state"`
}

// errDisconnected ends a reconnect loop after an explicit Disconnect.
var errDisconnected = errors.New("connection closed by disconnect")

// Connection is one game's push connection. All methods are safe for
// concurrent use.
type Connection struct {
	cfg    Config
	dialer websocket.Dialer
	logger zerolog.Logger

	// connectMu serializes Connect calls.
	connectMu sync.Mutex

	mu       sync.RWMutex
	state    State
	conn     *websocket.Conn
	subs     map[string]struct{}
	attempts int
	handler  Handler
	// lctx is the current lifecycle; cancel ends it.
	lctx   context.Context
	cancel context.CancelFunc

	// writeMu serializes data frames; gorilla allows one writer at a time.
	writeMu sync.Mutex

	wg sync.WaitGroup
}

// New creates a disconnected Connection.
func New(cfg Config) *Connection {
	cfg.applyDefaults()
	c := &Connection{
		cfg: cfg,
		dialer: websocket.Dialer{
			HandshakeTimeout:  cfg.HandshakeTimeout,
			EnableCompression: true,
		},
		logger: logging.WithComponent("realtime").With().Str("game_id", cfg.GameID).Logger(),
		subs:   make(map[string]struct{}),
	}
	metrics.RealtimeState.WithLabelValues(cfg.GameID).Set(float64(StateDisconnected))
	return c
}

// SetHandler installs the event handler, replacing any previous one.
func (c *Connection) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// GameID returns the configured game.
func (c *Connection) GameID() string {
	return c.cfg.GameID
}

// Connect opens the connection. It returns nil immediately when the
// connection is already Connected or a reconnect cycle is in progress.
// Otherwise it dials, retrying per the reconnect policy, and returns a
// connection error only once every attempt has failed (or ctx ends).
// Calling Connect on a Closed connection starts a fresh lifecycle.
func (c *Connection) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	switch c.state {
	case StateConnected, StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return nil
	}
	lctx, cancel := context.WithCancel(context.Background())
	c.lctx, c.cancel = lctx, cancel
	c.attempts = 0
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.logger.Info().Str("endpoint", c.cfg.Endpoint).Msg("Connecting")

	conn, err := c.dial(ctx, lctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Initial dial failed")
		conn, err = c.reconnect(ctx, lctx, err)
	}
	if err != nil {
		switch {
		case errors.Is(err, errDisconnected):
			return gameerr.New(gameerr.KindConnection, c.cfg.GameID, "connect", "disconnected while connecting")
		case ctx.Err() != nil:
			c.abandon(lctx)
			return gameerr.Wrap(gameerr.KindConnection, c.cfg.GameID, "connect", ctx.Err())
		}
		return err
	}

	if !c.attach(lctx, conn, true) {
		closeConn(conn)
		return gameerr.New(gameerr.KindConnection, c.cfg.GameID, "connect", "disconnected while connecting")
	}
	c.logger.Info().Msg("Connected")
	return nil
}

// Disconnect moves to Closed, stops the heartbeat and any reconnect wait,
// closes the transport and waits for the connection's goroutines to exit.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		closeConn(conn)
	}
	c.wg.Wait()
	c.logger.Info().Msg("Disconnected")
	return nil
}

// SubscribeToPlayer adds playerID to the subscription set and, when
// connected, sends the subscribe control message. A send failure is
// returned as a delivery error; the player stays subscribed and is sent
// again on the next reconnect.
func (c *Connection) SubscribeToPlayer(playerID string) error {
	if playerID == "" {
		return gameerr.New(gameerr.KindValidation, c.cfg.GameID, "subscribe", "empty player id")
	}
	c.mu.Lock()
	c.subs[playerID] = struct{}{}
	n := len(c.subs)
	conn := c.connectedConnLocked()
	c.mu.Unlock()

	metrics.RealtimeSubscriptions.WithLabelValues(c.cfg.GameID).Set(float64(n))
	if conn == nil {
		return nil
	}
	return c.control(conn, controlSubscribe, playerID)
}

// UnsubscribeFromPlayer removes playerID from the set and, when connected,
// sends the unsubscribe control message.
func (c *Connection) UnsubscribeFromPlayer(playerID string) error {
	c.mu.Lock()
	_, had := c.subs[playerID]
	delete(c.subs, playerID)
	n := len(c.subs)
	conn := c.connectedConnLocked()
	c.mu.Unlock()

	metrics.RealtimeSubscriptions.WithLabelValues(c.cfg.GameID).Set(float64(n))
	if conn == nil || !had {
		return nil
	}
	return c.control(conn, controlUnsubscribe, playerID)
}

// IsSubscribed reports whether playerID is in the subscription set.
func (c *Connection) IsSubscribed(playerID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subs[playerID]
	return ok
}

// Subscriptions returns the subscribed player IDs, sorted.
func (c *Connection) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedSubsLocked()
}

// State returns the current state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns a diagnostics snapshot.
func (c *Connection) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Connected:         c.state == StateConnected,
		GameID:            c.cfg.GameID,
		SubscribedPlayers: len(c.subs),
		ReconnectAttempts: c.attempts,
		State:             c.state,
	}
}

// ============================================================================
// Lifecycle internals
// ============================================================================

func (c *Connection) dial(ctx, lctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()
	stop := context.AfterFunc(lctx, cancel)
	defer stop()

	conn, resp, err := c.dialer.DialContext(dctx, c.cfg.Endpoint, c.cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// reconnect runs the backoff policy until a dial succeeds, the attempts
// are exhausted, the lifecycle is cancelled or ctx ends.
func (c *Connection) reconnect(ctx, lctx context.Context, cause error) (*websocket.Conn, error) {
	for {
		c.mu.Lock()
		if lctx.Err() != nil {
			c.mu.Unlock()
			return nil, errDisconnected
		}
		if c.attempts >= c.cfg.MaxReconnectAttempts {
			c.mu.Unlock()
			return nil, c.exhaust(lctx, cause)
		}
		c.attempts++
		attempt := c.attempts
		c.setStateLocked(StateReconnecting)
		c.mu.Unlock()

		metrics.RealtimeReconnects.WithLabelValues(c.cfg.GameID).Inc()
		delay := c.backoff(attempt)
		c.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-lctx.Done():
			timer.Stop()
			return nil, errDisconnected
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}

		if !c.setStateIfActive(lctx, StateConnecting) {
			return nil, errDisconnected
		}
		conn, err := c.dial(ctx, lctx)
		if err == nil {
			return conn, nil
		}
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect failed")
		cause = err
	}
}

// backoff returns the wait before reconnect attempt n (1-based).
func (c *Connection) backoff(n int) time.Duration {
	d := float64(c.cfg.ReconnectInterval) * math.Pow(c.cfg.BackoffMultiplier, float64(n-1))
	if d > float64(c.cfg.MaxReconnectInterval) || math.IsInf(d, 0) {
		return c.cfg.MaxReconnectInterval
	}
	return time.Duration(d)
}

// exhaust moves to Closed and emits the single terminal ERROR event.
func (c *Connection) exhaust(lctx context.Context, cause error) error {
	c.mu.Lock()
	if lctx.Err() != nil {
		c.mu.Unlock()
		return errDisconnected
	}
	attempts := c.attempts
	c.setStateLocked(StateClosed)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	msg := fmt.Sprintf("gave up after %d reconnect attempts", attempts)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	err := &gameerr.Error{Kind: gameerr.KindConnection, GameID: c.cfg.GameID, Op: "connect", Message: msg, Err: cause}
	c.logger.Error().Err(cause).Int("attempts", attempts).Msg("Reconnect attempts exhausted")
	c.emit(Event{Type: EventError, GameID: c.cfg.GameID, Timestamp: time.Now(), Err: err, Terminal: true})
	return err
}

// abandon resets a lifecycle that never got connected.
func (c *Connection) abandon(lctx context.Context) {
	c.mu.Lock()
	if c.lctx == lctx && c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()
}

// attach installs conn as the live connection, resets the attempt counter
// and resends the subscription set. On the first attach of a lifecycle it
// also starts the read and heartbeat goroutines.
func (c *Connection) attach(lctx context.Context, conn *websocket.Conn, start bool) bool {
	c.mu.Lock()
	if lctx.Err() != nil {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.attempts = 0
	c.setStateLocked(StateConnected)
	subs := c.sortedSubsLocked()
	if start {
		c.wg.Add(2)
		go c.readLoop(lctx, conn)
		go c.heartbeatLoop(lctx)
	}
	c.mu.Unlock()

	for _, id := range subs {
		if err := c.control(conn, controlSubscribe, id); err != nil {
			c.logger.Warn().Err(err).Str("player_id", id).Msg("Resubscribe failed")
		}
	}
	return true
}

func (c *Connection) readLoop(lctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		err := c.readFrames(conn)
		c.detach(conn)
		if lctx.Err() != nil {
			return
		}

		kind := gameerr.KindConnection
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = gameerr.KindTimeout
			c.logger.Warn().Dur("timeout", c.cfg.MessageTimeout).Msg("No traffic within message timeout")
		} else {
			c.logger.Warn().Err(err).Msg("Connection lost")
		}
		c.emit(Event{Type: EventError, GameID: c.cfg.GameID, Timestamp: time.Now(), Err: gameerr.Wrap(kind, c.cfg.GameID, "read", err)})

		next, rerr := c.reconnect(lctx, lctx, err)
		if rerr != nil {
			return
		}
		if !c.attach(lctx, next, false) {
			closeConn(next)
			return
		}
		c.logger.Info().Msg("Reconnected")
		conn = next
	}
}

// readFrames reads until the transport fails. Any inbound frame, including
// pings and pongs, pushes the read deadline out by MessageTimeout.
func (c *Connection) readFrames(conn *websocket.Conn) error {
	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.MessageTimeout))
	}
	conn.SetPongHandler(func(string) error { return extend() })
	conn.SetPingHandler(func(data string) error {
		if err := extend(); err != nil {
			return err
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		if err := extend(); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleFrame(data)
	}
}

// handleFrame turns one inbound frame into an event. Malformed frames
// become ERROR events and never affect the connection state.
func (c *Connection) handleFrame(data []byte) {
	now := time.Now()
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.invalidFrame(now, fmt.Sprintf("malformed frame: %v", err))
		return
	}

	t := EventType(f.Type)
	switch t {
	case EventPlayerUpdate, EventAssetChange, EventAchievementEarned, EventHeartbeat:
	case EventError:
		msg := f.Message
		if msg == "" {
			msg = "upstream reported an error"
		}
		metrics.RealtimeMessages.WithLabelValues(c.cfg.GameID, string(t)).Inc()
		c.emit(Event{
			Type: EventError, GameID: c.cfg.GameID, PlayerID: f.PlayerID, Timestamp: now, Data: f.Data,
			Err: gameerr.New(gameerr.KindDataSource, c.cfg.GameID, "push", msg),
		})
		return
	default:
		c.invalidFrame(now, fmt.Sprintf("unknown frame type %q", f.Type))
		return
	}
	if t.playerScoped() && f.PlayerID == "" {
		c.invalidFrame(now, fmt.Sprintf("%s frame without playerId", t))
		return
	}

	ts, ok := parseTimestamp(f.Timestamp)
	if !ok {
		ts = now
	}
	metrics.RealtimeMessages.WithLabelValues(c.cfg.GameID, string(t)).Inc()
	c.emit(Event{Type: t, GameID: c.cfg.GameID, PlayerID: f.PlayerID, Timestamp: ts, Data: f.Data, Delta: f.Delta})
}

func (c *Connection) invalidFrame(at time.Time, msg string) {
	metrics.RealtimeMessages.WithLabelValues(c.cfg.GameID, "invalid").Inc()
	c.logger.Debug().Str("reason", msg).Msg("Dropping invalid frame")
	c.emit(Event{
		Type: EventError, GameID: c.cfg.GameID, Timestamp: at,
		Err: gameerr.New(gameerr.KindValidation, c.cfg.GameID, "push", msg),
	})
}

// heartbeatLoop is started once per lifecycle and sends a keepalive on
// every tick while connected.
func (c *Connection) heartbeatLoop(lctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			var conn *websocket.Conn
			if c.lctx == lctx && lctx.Err() == nil {
				conn = c.connectedConnLocked()
			}
			c.mu.RUnlock()
			if conn == nil {
				continue
			}
			if err := c.send(conn, controlMessage{Type: controlHeartbeat, Timestamp: time.Now().UTC()}); err != nil {
				c.logger.Debug().Err(err).Msg("Heartbeat send failed")
			}
		}
	}
}

// detach clears conn if it is still the live connection.
func (c *Connection) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	closeConn(conn)
}

func (c *Connection) control(conn *websocket.Conn, kind, playerID string) error {
	err := c.send(conn, controlMessage{Type: kind, PlayerID: playerID, Timestamp: time.Now().UTC()})
	if err != nil {
		return &gameerr.Error{
			Kind: gameerr.KindNetwork, GameID: c.cfg.GameID, Op: kind,
			Message: "delivery failed: " + err.Error(), Err: err,
		}
	}
	return nil
}

func (c *Connection) send(conn *websocket.Conn, msg controlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Connection) emit(ev Event) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h != nil {
		h(ev)
	}
}

func (c *Connection) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug().Str("from", c.state.String()).Str("to", s.String()).Msg("State change")
	c.state = s
	metrics.RealtimeState.WithLabelValues(c.cfg.GameID).Set(float64(s))
}

func (c *Connection) setStateIfActive(lctx context.Context, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lctx.Err() != nil {
		return false
	}
	c.setStateLocked(s)
	return true
}

func (c *Connection) connectedConnLocked() *websocket.Conn {
	if c.state != StateConnected {
		return nil
	}
	return c.conn
}

func (c *Connection) sortedSubsLocked() []string {
	out := make([]string, 0, len(c.subs))
	for id := range c.subs {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func closeConn(conn *websocket.Conn) {
	if conn != nil {
		_ = conn.Close()
	}
}
