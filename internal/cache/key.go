// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package cache

import (
	"slices"
	"strings"
)

// KeyType is the namespace a cache key belongs to.
type KeyType string

const (
	KeyPlayerData       KeyType = "player_data"
	KeyGameAssets       KeyType = "game_assets"
	KeyAchievements     KeyType = "achievements"
	KeyStatistics       KeyType = "statistics"
	KeyAggregatedData   KeyType = "aggregated_data"
	KeyValidationResult KeyType = "validation_result"
	KeyAdapterHealth    KeyType = "adapter_health"
)

// Key is a structured cache key. Two keys with the same populated fields
// always serialize to the same string, and different populated field sets
// never collide.
type Key struct {
	Type          KeyType
	GameID        string
	PlayerID      string
	AssetID       string
	AchievementID string
	Params        map[string]string
}

// Serialized layout:
//
//	<type>:<gameId>:[p=<playerId>:][a=<assetId>:][ach=<achievementId>:][@<k>=<v>:]...
//
// Every component is escaped so that ':' '=' and glob metacharacters inside
// identifiers can neither split a segment nor be read as a wildcard. Params
// are emitted sorted by name.
func (k Key) String() string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(escape(string(k.Type)))
	b.WriteByte(':')
	b.WriteString(escape(k.GameID))
	b.WriteByte(':')
	writeSegment(&b, "p=", k.PlayerID)
	writeSegment(&b, "a=", k.AssetID)
	writeSegment(&b, "ach=", k.AchievementID)
	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			b.WriteByte('@')
			b.WriteString(escape(name))
			b.WriteByte('=')
			b.WriteString(escape(k.Params[name]))
			b.WriteByte(':')
		}
	}
	return b.String()
}

func writeSegment(b *strings.Builder, tag, value string) {
	if value == "" {
		return
	}
	b.WriteString(tag)
	b.WriteString(escape(value))
	b.WriteByte(':')
}

// PlayerDataKey is the key of a full canonical record.
func PlayerDataKey(gameID, playerID string) Key {
	return Key{Type: KeyPlayerData, GameID: gameID, PlayerID: playerID}
}

// AssetsKey is the key of a player's normalized asset list.
func AssetsKey(gameID, playerID string) Key {
	return Key{Type: KeyGameAssets, GameID: gameID, PlayerID: playerID}
}

// AchievementsKey is the key of a player's normalized achievements.
func AchievementsKey(gameID, playerID string) Key {
	return Key{Type: KeyAchievements, GameID: gameID, PlayerID: playerID}
}

// StatisticsKey is the key of a player's statistics map.
func StatisticsKey(gameID, playerID string) Key {
	return Key{Type: KeyStatistics, GameID: gameID, PlayerID: playerID}
}

// HealthKey is the key of an adapter's last health probe result.
func HealthKey(gameID string) Key {
	return Key{Type: KeyAdapterHealth, GameID: gameID}
}

// ValidationKey is the key of a cached asset validation verdict. fingerprint
// identifies the exact asset content the verdict was computed for; an empty
// fingerprint is omitted.
func ValidationKey(gameID, assetID, fingerprint string) Key {
	k := Key{Type: KeyValidationResult, GameID: gameID, AssetID: assetID}
	if fingerprint != "" {
		k.Params = map[string]string{"v": fingerprint}
	}
	return k
}

// '%' must stay first so already-escaped output is never escaped twice.
var keyEscaper = strings.NewReplacer(
	"%", "%25",
	":", "%3A",
	"=", "%3D",
	"@", "%40",
	"*", "%2A",
	"?", "%3F",
	"[", "%5B",
	"]", "%5D",
	"{", "%7B",
	"}", "%7D",
	"\\", "%5C",
	"/", "%2F",
)

// escape percent-encodes the characters that are structural in a serialized
// key or meaningful to the glob matcher.
func escape(s string) string {
	return keyEscaper.Replace(s)
}
