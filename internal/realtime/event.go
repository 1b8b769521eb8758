// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package realtime

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// EventType is the closed set of events a Connection delivers.
type EventType string

const (
	EventPlayerUpdate      EventType = "PLAYER_UPDATE"
	EventAssetChange       EventType = "ASSET_CHANGE"
	EventAchievementEarned EventType = "ACHIEVEMENT_EARNED"
	EventHeartbeat         EventType = "HEARTBEAT"
	EventError             EventType = "ERROR"
)

// playerScoped reports whether frames of this type must name a player.
func (t EventType) playerScoped() bool {
	return t == EventPlayerUpdate || t == EventAssetChange || t == EventAchievementEarned
}

// Event is one typed message delivered to the handler.
type Event struct {
	Type      EventType
	GameID    string
	PlayerID  string
	Timestamp time.Time
	// Data is the raw payload of the frame, untouched.
	Data json.RawMessage
	// Delta marks a payload that describes a change rather than full state.
	Delta bool
	// Err is set on ERROR events.
	Err error
	// Terminal is set on the single ERROR event emitted when reconnect
	// attempts are exhausted.
	Terminal bool
}

// Handler receives events. It is called from the connection's read
// goroutine, one event at a time in arrival order, and must not block or
// call Disconnect.
type Handler func(Event)

// frame is the inbound wire shape.
type frame struct {
	Type      string          `json:"type"`
	PlayerID  string          `json:"playerId"`
	Timestamp json.RawMessage `json:"timestamp"`
	Delta     bool            `json:"delta"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
}

// controlMessage is the outbound wire shape.
type controlMessage struct {
	Type      string    `json:"type"`
	PlayerID  string    `json:"playerId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	controlSubscribe   = "subscribe"
	controlUnsubscribe = "unsubscribe"
	controlHeartbeat   = "heartbeat"
)

// parseTimestamp accepts an RFC 3339 string or Unix milliseconds.
func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		return t, err == nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
