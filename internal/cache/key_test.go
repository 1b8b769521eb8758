// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package cache

import "testing"

func TestKeyStringLayout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"game only", HealthKey("G1"), "adapter_health:G1:"},
		{"player", PlayerDataKey("G1", "p1"), "player_data:G1:p=p1:"},
		{"asset", ValidationKey("G1", "a1", ""), "validation_result:G1:a=a1:"},
		{"asset content", ValidationKey("G1", "a1", "9f3c"), "validation_result:G1:a=a1:@v=9f3c:"},
		{
			"all fields and sorted params",
			Key{Type: KeyAggregatedData, GameID: "G1", PlayerID: "p1", AssetID: "a1", AchievementID: "x",
				Params: map[string]string{"window": "7d", "metric": "kills"}},
			"aggregated_data:G1:p=p1:a=a1:ach=x:@metric=kills:@window=7d:",
		},
		{"escaped separators", PlayerDataKey("G:1", "p=1*"), "player_data:G%3A1:p=p%3D1%2A:"},
		{"percent escaped first", PlayerDataKey("G1", "100%3A"), "player_data:G1:p=100%253A:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyStringDeterministic(t *testing.T) {
	t.Parallel()

	a := Key{Type: KeyStatistics, GameID: "G", PlayerID: "p", Params: map[string]string{"a": "1", "b": "2", "c": "3"}}
	b := Key{Type: KeyStatistics, GameID: "G", PlayerID: "p", Params: map[string]string{"c": "3", "a": "1", "b": "2"}}
	for i := 0; i < 20; i++ {
		if a.String() != b.String() {
			t.Fatalf("equal keys serialized differently: %q vs %q", a.String(), b.String())
		}
	}
}

func TestKeyStringInjective(t *testing.T) {
	t.Parallel()

	// Each pair differs in populated fields but could collide under a naive
	// join of the raw values.
	pairs := [][2]Key{
		{PlayerDataKey("G", "p1"), {Type: KeyPlayerData, GameID: "G", AssetID: "p1"}},
		{PlayerDataKey("G:p=x", ""), PlayerDataKey("G", "x")},
		{PlayerDataKey("G", "a:a=b"), {Type: KeyPlayerData, GameID: "G", PlayerID: "a", AssetID: "b"}},
		{
			{Type: KeyPlayerData, GameID: "G", Params: map[string]string{"a": "b:@c=d"}},
			{Type: KeyPlayerData, GameID: "G", Params: map[string]string{"a": "b", "c": "d"}},
		},
		{HealthKey("G1"), HealthKey("G10")},
		{PlayerDataKey("G", ""), {Type: KeyPlayerData, GameID: "G", Params: map[string]string{}}},
	}

	for i, p := range pairs {
		if i == len(pairs)-1 {
			// Empty params equal no params: same populated field set.
			if p[0].String() != p[1].String() {
				t.Errorf("pair %d: empty params should serialize like none", i)
			}
			continue
		}
		if p[0].String() == p[1].String() {
			t.Errorf("pair %d collided: %q", i, p[0].String())
		}
	}
}

func TestRenderPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		template string
		vars     map[string]string
		want     string
	}{
		{"game_assets:{gameId}:*", map[string]string{"gameId": "G1"}, "game_assets:G1:*"},
		{"player_data:{gameId}:p={playerId}:*", map[string]string{"gameId": "G1"}, "player_data:G1:p=*:*"},
		{"player_data:{gameId}:*", map[string]string{"gameId": "G*1"}, "player_data:G%2A1:*"},
		{"{player_data,statistics}:{gameId}:*", map[string]string{"gameId": "G"}, "{player_data,statistics}:G:*"},
		{"unterminated:{gameId", nil, "unterminated:{gameId"},
	}

	for _, tt := range tests {
		if got := RenderPattern(tt.template, tt.vars); got != tt.want {
			t.Errorf("RenderPattern(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern, key string
		want         bool
	}{
		{"game_assets:G1:*", "game_assets:G1:", true},
		{"game_assets:G1:*", "game_assets:G1:p=p1:", true},
		{"game_assets:G1:*", "game_assets:G10:p=p1:", false},
		{"game_assets:G1:*", "player_data:G1:p=p1:", false},
		{"{player_data,statistics}:G1:*", "statistics:G1:p=x:", true},
		{"player_data:G?:*", "player_data:G2:", true},
	}

	for _, tt := range tests {
		if got := Match(tt.pattern, tt.key); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.key, got, tt.want)
		}
	}
}

func TestLiteralPrefix(t *testing.T) {
	t.Parallel()

	checkStringEqual(t, "star", literalPrefix("game_assets:G1:*"), "game_assets:G1:")
	checkStringEqual(t, "brace", literalPrefix("{a,b}:x"), "")
	checkStringEqual(t, "none", literalPrefix("adapter_health:G1:"), "adapter_health:G1:")
}

func checkStringEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %q, want %q", field, got, want)
	}
}
