// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package gameerr

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorMessageNamesGameAndOp(t *testing.T) {
	t.Parallel()

	err := Wrap(KindDataSource, "chainquest", "fetchPlayerData", io.ErrUnexpectedEOF)
	want := "data_source error in chainquest/fetchPlayerData: unexpected EOF"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("cause should be reachable through Unwrap")
	}
}

func TestIsMatchesKindSentinels(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("outer: %w", New(KindTimeout, "g", "op", "slow"))
	if !errors.Is(err, Timeout) {
		t.Error("expected Timeout match")
	}
	if errors.Is(err, DataSource) {
		t.Error("did not expect DataSource match")
	}
	if errors.Is(err, &Error{Kind: KindTimeout, GameID: "other"}) {
		t.Error("game id mismatch should not match")
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %s", got)
	}
	if got := KindOf(New(KindNotFound, "g", "op", "x")); got != KindNotFound {
		t.Errorf("KindOf = %s, want not_found", got)
	}
	if Wrap(KindNetwork, "g", "op", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}
