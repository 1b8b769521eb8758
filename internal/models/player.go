// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

// Package models contains the canonical, game-agnostic player model every
// adapter normalizes into.
package models

import (
	"maps"
	"time"
)

// AssetType is the closed set of asset categories.
type AssetType string

const (
	AssetTypeTradable   AssetType = "tradable"
	AssetTypeCosmetic   AssetType = "cosmetic"
	AssetTypeEquipment  AssetType = "equipment"
	AssetTypeConsumable AssetType = "consumable"
	AssetTypeCurrency   AssetType = "currency"
	AssetTypeUnknown    AssetType = "unknown"
)

// Valid reports whether t is one of the known types (including unknown).
func (t AssetType) Valid() bool {
	switch t {
	case AssetTypeTradable, AssetTypeCosmetic, AssetTypeEquipment,
		AssetTypeConsumable, AssetTypeCurrency, AssetTypeUnknown:
		return true
	}
	return false
}

// Rarity is the closed set of rarity tiers.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
	RarityUnknown   Rarity = "unknown"
)

// Valid reports whether r is one of the known tiers (including unknown).
func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary, RarityUnknown:
		return true
	}
	return false
}

// Asset is an in-game item. Identity is (game, ID).
type Asset struct {
	ID       string         `json:"id" validate:"required"`
	Type     AssetType      `json:"type" validate:"required"`
	Rarity   Rarity         `json:"rarity" validate:"required"`
	Owner    string         `json:"owner"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Achievement is an earned milestone. Normalized achievements always carry
// an ID and an EarnedAt.
type Achievement struct {
	ID       string         `json:"id"`
	PlayerID string         `json:"playerId"`
	EarnedAt time.Time      `json:"earnedAt"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PlayerRecord is the canonical per-game view of one player.
type PlayerRecord struct {
	PlayerID     string             `json:"playerId"`
	GameID       string             `json:"gameId"`
	Assets       []Asset            `json:"assets"`
	Achievements []Achievement      `json:"achievements"`
	Statistics   map[string]float64 `json:"statistics"`
	LastSyncTime time.Time          `json:"lastSyncTime"`
}

// Clone returns a deep copy so callers can never mutate a record held by
// the adapter or the cache.
func (r *PlayerRecord) Clone() *PlayerRecord {
	if r == nil {
		return nil
	}
	out := &PlayerRecord{
		PlayerID:     r.PlayerID,
		GameID:       r.GameID,
		Assets:       make([]Asset, len(r.Assets)),
		Achievements: make([]Achievement, len(r.Achievements)),
		Statistics:   maps.Clone(r.Statistics),
		LastSyncTime: r.LastSyncTime,
	}
	for i, a := range r.Assets {
		a.Metadata = cloneMetadata(a.Metadata)
		out.Assets[i] = a
	}
	for i, a := range r.Achievements {
		a.Metadata = cloneMetadata(a.Metadata)
		out.Achievements[i] = a
	}
	if out.Statistics == nil {
		out.Statistics = map[string]float64{}
	}
	return out
}

// cloneMetadata deep-copies the JSON-shaped values a metadata map can hold.
func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMetadata(t)
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}
