package world

import (
	"context"
	"sort"
	"time"
)

// Position is a point in world coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Player is one online player as reported by the hosting simulation.
type Player struct {
	SteamID      uint64   `json:"steam_id"`
	IdentityID   int64    `json:"identity_id"`
	GUID         string   `json:"guid"`
	Name         string   `json:"name,omitempty"`
	IsBot        bool     `json:"is_bot,omitempty"`
	HasCharacter bool     `json:"has_character"`
	Dead         bool     `json:"dead,omitempty"`
	Position     Position `json:"position"`

	// Error carries a collector-side lookup failure for this entity.
	// The rest of the snapshot is still valid.
	Error string `json:"error,omitempty"`
}

// Eligible reports whether the player should produce a position message:
// a real (non-bot) player with a live character.
func (p *Player) Eligible() bool {
	return !p.IsBot && p.HasCharacter && !p.Dead
}

// Antenna is one antenna block discovered on a grid.
type Antenna struct {
	EntityID   uint64   `json:"id"`
	Name       string   `json:"name"`
	Grid       string   `json:"grid"`
	Enabled    bool     `json:"enabled"`
	Functional bool     `json:"functional"`
	Working    bool     `json:"working"`
	Position   Position `json:"position"`

	Error string `json:"error,omitempty"`
}

// Usable reports whether the antenna belongs in the broadcast snapshot.
func (a *Antenna) Usable() bool {
	return a.Enabled && a.Functional && a.Working
}

// Snapshot is one capture of the simulation's telemetry-relevant state.
type Snapshot struct {
	Players    []Player  `json:"players"`
	Antennas   []Antenna `json:"antennas"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
}

// Source supplies the current world snapshot. Implementations may
// return an error when no snapshot is available yet or the query
// transiently fails; callers are expected to tolerate both.
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// UsableAntennas filters to usable antennas, removes duplicate entity
// ids (grids scanned twice can report the same block twice), and sorts
// by entity id so downstream truncation is deterministic.
func UsableAntennas(antennas []Antenna) []Antenna {
	seen := make(map[uint64]bool, len(antennas))
	out := make([]Antenna, 0, len(antennas))
	for _, a := range antennas {
		if !a.Usable() || a.Error != "" {
			continue
		}
		if seen[a.EntityID] {
			continue
		}
		seen[a.EntityID] = true
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}
