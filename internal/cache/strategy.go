// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package cache

import (
	"fmt"
	"slices"
	"time"
)

// Domain triggers fired by adapters and external workflows.
const (
	TriggerAssetTransfer     = "asset_transfer"
	TriggerAchievementEarned = "achievement_earned"
	TriggerPlayerUpdate      = "player_update"
	TriggerSwapCompleted     = "swap_completed"
	TriggerAdapterReconnect  = "adapter_reconnected"
)

// Strategy maps domain triggers to the key pattern they make stale.
// Pattern is a glob template whose {name} placeholders are filled from the
// trigger context. A non-zero TTL overrides the default TTL for keys the
// pattern (with every placeholder widened to '*') matches.
type Strategy struct {
	Name     string        `koanf:"name" json:"name"`
	Pattern  string        `koanf:"pattern" json:"pattern"`
	Triggers []string      `koanf:"triggers" json:"triggers"`
	TTL      time.Duration `koanf:"ttl" json:"ttl,omitempty"`
}

// Handles reports whether the strategy reacts to trigger.
func (s Strategy) Handles(trigger string) bool {
	return slices.Contains(s.Triggers, trigger)
}

func (s Strategy) validate() error {
	if s.Name == "" {
		return fmt.Errorf("strategy with pattern %q has no name", s.Pattern)
	}
	if len(s.Triggers) == 0 {
		return fmt.Errorf("strategy %s has no triggers", s.Name)
	}
	if err := ValidatePattern(RenderPattern(s.Pattern, nil)); err != nil {
		return fmt.Errorf("strategy %s: %w", s.Name, err)
	}
	return nil
}

// DefaultStrategies is the built-in trigger routing.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name:     "player-assets",
			Pattern:  "game_assets:{gameId}:p={playerId}:*",
			Triggers: []string{TriggerAssetTransfer, TriggerSwapCompleted},
		},
		{
			Name:     "player-record",
			Pattern:  "player_data:{gameId}:p={playerId}:*",
			Triggers: []string{TriggerAssetTransfer, TriggerAchievementEarned, TriggerPlayerUpdate, TriggerSwapCompleted},
		},
		{
			Name:     "player-achievements",
			Pattern:  "achievements:{gameId}:p={playerId}:*",
			Triggers: []string{TriggerAchievementEarned},
		},
		{
			Name:     "player-statistics",
			Pattern:  "statistics:{gameId}:p={playerId}:*",
			Triggers: []string{TriggerPlayerUpdate, TriggerAchievementEarned},
		},
		{
			Name:     "game-aggregates",
			Pattern:  "aggregated_data:{gameId}:*",
			Triggers: []string{TriggerAssetTransfer, TriggerSwapCompleted},
			TTL:      time.Minute,
		},
		{
			Name:     "asset-validation",
			Pattern:  "validation_result:{gameId}:a={assetId}:*",
			Triggers: []string{TriggerAssetTransfer, TriggerSwapCompleted},
		},
		{
			Name:     "adapter-health",
			Pattern:  "adapter_health:{gameId}:*",
			Triggers: []string{TriggerAdapterReconnect},
			TTL:      30 * time.Second,
		},
	}
}
