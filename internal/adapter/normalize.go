// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package adapter

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/tomtom215/chainplay/internal/logging"
	"github.com/tomtom215/chainplay/internal/metrics"
	"github.com/tomtom215/chainplay/internal/models"
)

// StatConverter rewrites one statistic. It returns the canonical name and
// value; ok=false drops the statistic.
type StatConverter func(value float64) (name string, converted float64, ok bool)

// Normalizer turns raw payloads into canonical records using per-game
// classification tables. Lookups are case-insensitive; unrecognized values
// map to the unknown type or rarity.
type Normalizer struct {
	GameID string
	// AssetTypes maps upstream type labels to canonical types.
	AssetTypes map[string]models.AssetType
	// Rarities maps upstream rarity labels to canonical tiers.
	Rarities map[string]models.Rarity
	// StatConverters apply unit conversions keyed by upstream stat name.
	// Statistics without a converter are copied unchanged.
	StatConverters map[string]StatConverter

	logger zerolog.Logger
}

// NewNormalizer returns a normalizer seeded with the canonical labels, so
// "tradable", "RARE" and the like resolve without a game table.
func NewNormalizer(gameID string) *Normalizer {
	n := &Normalizer{
		GameID:         gameID,
		AssetTypes:     make(map[string]models.AssetType),
		Rarities:       make(map[string]models.Rarity),
		StatConverters: make(map[string]StatConverter),
		logger:         logging.WithComponent("normalize").With().Str("game_id", gameID).Logger(),
	}
	for _, t := range []models.AssetType{
		models.AssetTypeTradable, models.AssetTypeCosmetic, models.AssetTypeEquipment,
		models.AssetTypeConsumable, models.AssetTypeCurrency,
	} {
		n.AssetTypes[string(t)] = t
	}
	for _, r := range []models.Rarity{
		models.RarityCommon, models.RarityUncommon, models.RarityRare,
		models.RarityEpic, models.RarityLegendary,
	} {
		n.Rarities[string(r)] = r
	}
	return n
}

// MapAssetTypes adds classification entries.
func (n *Normalizer) MapAssetTypes(t models.AssetType, labels ...string) *Normalizer {
	for _, l := range labels {
		n.AssetTypes[normLabel(l)] = t
	}
	return n
}

// MapRarities adds rarity entries.
func (n *Normalizer) MapRarities(r models.Rarity, labels ...string) *Normalizer {
	for _, l := range labels {
		n.Rarities[normLabel(l)] = r
	}
	return n
}

// ConvertStat registers a converter for an upstream statistic.
func (n *Normalizer) ConvertStat(upstream string, conv StatConverter) *Normalizer {
	n.StatConverters[upstream] = conv
	return n
}

// AssetType classifies an upstream label.
func (n *Normalizer) AssetType(label string) models.AssetType {
	if t, ok := n.AssetTypes[normLabel(label)]; ok {
		return t
	}
	return models.AssetTypeUnknown
}

// Rarity classifies an upstream rarity label.
func (n *Normalizer) Rarity(label string) models.Rarity {
	if r, ok := n.Rarities[normLabel(label)]; ok {
		return r
	}
	return models.RarityUnknown
}

func normLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Normalize builds the canonical record for playerID. Assets without an id
// and achievements without an id or earned time are dropped and reported as
// anomalies; everything else falls back to defaults. Statistics are numeric:
// numbers and numeric strings copy as is, booleans become 1 or 0, and any
// other value is dropped as a statistic_not_numeric anomaly.
func (n *Normalizer) Normalize(playerID string, raw RawRecord) *models.PlayerRecord {
	rec := &models.PlayerRecord{
		PlayerID:     playerID,
		GameID:       n.GameID,
		Assets:       []models.Asset{},
		Achievements: []models.Achievement{},
		Statistics:   map[string]float64{},
	}
	if raw == nil {
		return rec
	}

	for _, ra := range raw.Records("assets", "items", "inventory") {
		id := ra.String("", "id", "assetId", "tokenId")
		if id == "" {
			n.anomaly("asset_missing_id", playerID, "")
			continue
		}
		rec.Assets = append(rec.Assets, models.Asset{
			ID:       id,
			Type:     n.AssetType(ra.String("", "type", "category", "kind")),
			Rarity:   n.Rarity(ra.String("", "rarity", "tier")),
			Owner:    ra.String(playerID, "owner", "ownerAddress"),
			Metadata: metadata(ra),
		})
	}

	seen := make(map[string]struct{})
	for _, rach := range raw.Records("achievements") {
		id := rach.String("", "id", "achievementId")
		if id == "" {
			n.anomaly("achievement_missing_id", playerID, "")
			continue
		}
		earnedAt, ok := rach.Time("earnedAt", "earned_at", "unlockedAt")
		if !ok {
			n.anomaly("achievement_missing_earned_at", playerID, id)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rec.Achievements = append(rec.Achievements, models.Achievement{
			ID:       id,
			PlayerID: playerID,
			EarnedAt: earnedAt.UTC(),
			Metadata: metadata(rach),
		})
	}

	for name, v := range raw.Map("statistics", "stats") {
		f, ok := toFloat(v)
		if !ok {
			n.anomaly("statistic_not_numeric", playerID, name)
			continue
		}
		if conv, ok := n.StatConverters[name]; ok {
			canonical, converted, keep := conv(f)
			if !keep {
				continue
			}
			rec.Statistics[canonical] = converted
			continue
		}
		rec.Statistics[name] = f
	}
	return rec
}

func (n *Normalizer) anomaly(reason, playerID, ref string) {
	metrics.AdapterNormalizationAnomalies.WithLabelValues(n.GameID, reason).Inc()
	ev := n.logger.Warn().Str("reason", reason).Str("player_id", playerID)
	if ref != "" {
		ev = ev.Str("ref", ref)
	}
	ev.Msg("Dropped malformed upstream item")
}

// metadata returns the nested metadata object as a plain map.
func metadata(r RawRecord) map[string]any {
	m := r.Map("metadata", "attributes")
	if len(m) == 0 {
		return nil
	}
	return map[string]any(m)
}
