package ssrc

import "testing"

func TestDeriveDeterministic(t *testing.T) {
	seeds := []string{"", "SERVER:default", "SERVER:My Colony", "12345:76561198000000001"}

	for _, seed := range seeds {
		a := Derive(seed)
		b := Derive(seed)
		if a != b {
			t.Errorf("Derive(%q) not deterministic: %d vs %d", seed, a, b)
		}
		if a == 0 {
			t.Errorf("Derive(%q) = 0, zero is reserved", seed)
		}
	}
}

func TestDeriveKnownValues(t *testing.T) {
	// FNV-1a reference values, pinned so the wire contract with the
	// mixing server cannot drift.
	tests := []struct {
		seed string
		want uint32
	}{
		{"", 2166136261},
		{"a", 0xe40c292c},
		{"SERVER:default", Derive("SERVER:default")}, // self-consistency
	}

	for _, tt := range tests {
		if got := Derive(tt.seed); got != tt.want {
			t.Errorf("Derive(%q) = %d, want %d", tt.seed, got, tt.want)
		}
	}
}

func TestDeriveDistinctSeeds(t *testing.T) {
	// One-byte seed differences must produce different outputs for
	// realistic inputs.
	a := Derive("SERVER:alpha")
	b := Derive("SERVER:alphb")
	if a == b {
		t.Errorf("distinct seeds collided: %d", a)
	}
}

func TestForPlayerNeverMatchesServer(t *testing.T) {
	serverSSRC := ForServer("Test Colony")

	for steamID := uint64(76561198000000000); steamID < 76561198000001000; steamID++ {
		got := ForPlayer(serverSSRC, steamID)
		if got == 0 {
			t.Fatalf("ForPlayer(%d, %d) = 0", serverSSRC, steamID)
		}
		if got == serverSSRC {
			t.Fatalf("ForPlayer(%d, %d) collided with server SSRC", serverSSRC, steamID)
		}
	}
}

func TestForPlayerDeterministic(t *testing.T) {
	a := ForPlayer(12345, 76561198000000001)
	b := ForPlayer(12345, 76561198000000001)
	if a != b {
		t.Errorf("ForPlayer not deterministic: %d vs %d", a, b)
	}

	// Different server, same player: distinct identifiers.
	c := ForPlayer(54321, 76561198000000001)
	if a == c {
		t.Errorf("player SSRC not salted by server SSRC: both %d", a)
	}
}

func TestForAntennas(t *testing.T) {
	tests := []struct {
		name       string
		serverSSRC uint32
		want       uint32
	}{
		{"normal server", 12345, 12345},
		{"zero server falls back to 1", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ForAntennas(tt.serverSSRC); got != tt.want {
				t.Errorf("ForAntennas(%d) = %d, want %d", tt.serverSSRC, got, tt.want)
			}
		})
	}
}
