// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package games

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomtom215/chainplay/internal/adapter"
	"github.com/tomtom215/chainplay/internal/models"
	"github.com/tomtom215/chainplay/internal/validation"
)

// ChainQuestID is the game ID ChainQuest is registered under.
const ChainQuestID = "chainquest"

// ChainQuest is an on-chain RPG. Items are ERC-1155 tokens owned by wallet
// addresses; the indexer API serves one document per player.
type ChainQuest struct {
	httpGame
	contract string
}

// NewChainQuest builds the ChainQuest source.
func NewChainQuest(cfg adapter.Config) (adapter.Source, error) {
	var header http.Header
	if cfg.ContractAddress != "" {
		header = http.Header{"X-Contract-Address": []string{cfg.ContractAddress}}
	}
	g := &ChainQuest{
		httpGame: newHTTPGame(cfg, "/v1/players/{playerId}/state", header),
		contract: strings.ToLower(cfg.ContractAddress),
	}
	g.normalizer.
		MapAssetTypes(models.AssetTypeEquipment, "weapon", "armor", "shield", "mount").
		MapAssetTypes(models.AssetTypeCosmetic, "skin", "emote", "banner").
		MapAssetTypes(models.AssetTypeConsumable, "potion", "scroll", "elixir").
		MapAssetTypes(models.AssetTypeCurrency, "gold", "gem", "shard").
		MapAssetTypes(models.AssetTypeTradable, "land", "deed", "relic").
		MapRarities(models.RarityCommon, "grey", "white").
		MapRarities(models.RarityUncommon, "green").
		MapRarities(models.RarityRare, "blue").
		MapRarities(models.RarityEpic, "purple").
		MapRarities(models.RarityLegendary, "orange", "mythic")
	return g, nil
}

// ValidateAsset requires a wallet owner and, when the asset names its
// contract, that it is this game's contract.
func (g *ChainQuest) ValidateAsset(_ context.Context, asset models.Asset) bool {
	if !schemaValid(asset) || asset.Type == models.AssetTypeUnknown {
		return false
	}
	if validation.Get().Var(asset.Owner, "evmaddress") != nil {
		return false
	}
	if g.contract == "" {
		return true
	}
	c, ok := asset.Metadata["contract"].(string)
	return !ok || strings.ToLower(c) == g.contract
}
