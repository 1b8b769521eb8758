// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package adapter

import (
	"context"

	"github.com/tomtom215/chainplay/internal/models"
)

// Source is what a game has to provide. The Adapter supplies everything
// else: retries, caching, push bridging and health tracking.
type Source interface {
	// FetchRawPlayerData fetches one player's payload. It is called through
	// the retry executor, so it should make a single attempt.
	FetchRawPlayerData(ctx context.Context, playerID string) (RawRecord, error)
	// Normalize converts a raw payload into the canonical record. It must
	// tolerate any payload shape.
	Normalize(playerID string, raw RawRecord) (*models.PlayerRecord, error)
	// ValidateAsset applies the game's ownership and schema rules.
	ValidateAsset(ctx context.Context, asset models.Asset) bool
	ConnectToGameNetwork(ctx context.Context) error
	DisconnectFromGameNetwork(ctx context.Context) error
}

// Pinger is implemented by sources that can check upstream liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
