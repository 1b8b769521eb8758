// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package games

import (
	"context"

	"github.com/tomtom215/chainplay/internal/adapter"
	"github.com/tomtom215/chainplay/internal/models"
)

// PixelRealmsID is the game ID PixelRealms is registered under.
const PixelRealmsID = "pixelrealms"

// PixelRealms is a sandbox game. It reports rarity as a numeric tier and
// durations in milliseconds.
type PixelRealms struct {
	httpGame
}

// NewPixelRealms builds the PixelRealms source.
func NewPixelRealms(cfg adapter.Config) (adapter.Source, error) {
	g := &PixelRealms{httpGame: newHTTPGame(cfg, "/api/players/{playerId}", nil)}
	g.normalizer.
		MapAssetTypes(models.AssetTypeCosmetic, "wearable", "decoration").
		MapAssetTypes(models.AssetTypeEquipment, "tool", "pickaxe").
		MapAssetTypes(models.AssetTypeConsumable, "food", "seed").
		MapAssetTypes(models.AssetTypeCurrency, "coin", "pixel").
		MapAssetTypes(models.AssetTypeTradable, "plot", "blueprint").
		MapRarities(models.RarityCommon, "1").
		MapRarities(models.RarityUncommon, "2").
		MapRarities(models.RarityRare, "3").
		MapRarities(models.RarityEpic, "4").
		MapRarities(models.RarityLegendary, "5").
		ConvertStat("playtime_ms", msToHours("playtime_hours")).
		ConvertStat("session_ms", msToHours("session_hours"))
	return g, nil
}

func msToHours(name string) adapter.StatConverter {
	return func(v float64) (string, float64, bool) {
		if v < 0 {
			return "", 0, false
		}
		return name, v / 3_600_000, true
	}
}

// ValidateAsset accepts any schema-valid asset with an owner.
func (g *PixelRealms) ValidateAsset(_ context.Context, asset models.Asset) bool {
	return schemaValid(asset) && asset.Owner != ""
}
