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

// Generic serves any game that speaks the canonical labels directly.
type Generic struct {
	httpGame
}

// NewGeneric builds a Generic source.
func NewGeneric(cfg adapter.Config) (adapter.Source, error) {
	return &Generic{httpGame: newHTTPGame(cfg, "/players/{playerId}", nil)}, nil
}

func (g *Generic) ValidateAsset(_ context.Context, asset models.Asset) bool {
	return schemaValid(asset)
}
