// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

// Package games holds the per-game Source implementations and the registry
// that turns configuration into running adapters.
//
// Each game supplies its classification tables, its endpoint layout and its
// asset rules; fetching, retries and caching come from package adapter.
// Games without a dedicated implementation use Generic.
package games

import (
	"context"
	"net/http"

	"github.com/tomtom215/chainplay/internal/adapter"
	"github.com/tomtom215/chainplay/internal/models"
	"github.com/tomtom215/chainplay/internal/validation"
)

// httpGame is the part every HTTP-backed game shares.
type httpGame struct {
	gameID     string
	source     *adapter.HTTPSource
	normalizer *adapter.Normalizer
}

func newHTTPGame(cfg adapter.Config, playerPath string, header http.Header) httpGame {
	return httpGame{
		gameID: cfg.GameID,
		source: adapter.NewHTTPSource(adapter.HTTPSourceConfig{
			GameID:            cfg.GameID,
			BaseURL:           cfg.RPCEndpoint,
			PlayerPath:        playerPath,
			Header:            header,
			Timeout:           cfg.RequestTimeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}),
		normalizer: adapter.NewNormalizer(cfg.GameID),
	}
}

func (g *httpGame) FetchRawPlayerData(ctx context.Context, playerID string) (adapter.RawRecord, error) {
	return g.source.FetchRaw(ctx, playerID)
}

func (g *httpGame) Normalize(playerID string, raw adapter.RawRecord) (*models.PlayerRecord, error) {
	return g.normalizer.Normalize(playerID, raw), nil
}

// Ping lets the adapter health check reach the upstream API.
func (g *httpGame) Ping(ctx context.Context) error {
	return g.source.Ping(ctx)
}

func (g *httpGame) ConnectToGameNetwork(ctx context.Context) error {
	return g.source.Ping(ctx)
}

func (g *httpGame) DisconnectFromGameNetwork(_ context.Context) error {
	g.source.Close()
	return nil
}

// schemaValid applies the rules every game shares: required fields and a
// known type and rarity.
func schemaValid(asset models.Asset) bool {
	if err := validation.ValidateStruct(asset); err != nil {
		return false
	}
	return asset.Type.Valid() && asset.Rarity.Valid()
}
