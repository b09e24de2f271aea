package forward

import (
	"encoding/json"
	"fmt"

	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/protocol"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/world"
)

// playerPosition is the JSON body of a per-player position message.
// "server" carries the legacy tag; "server_name" the persisted identity.
type playerPosition struct {
	Server     string         `json:"server"`
	ServerName string         `json:"server_name"`
	ServerSSRC uint32         `json:"server_ssrc"`
	PlayerSSRC uint32         `json:"player_ssrc"`
	GUID       string         `json:"guid"`
	SteamID    uint64         `json:"steam_id"`
	IdentityID int64          `json:"identity_id"`
	Position   world.Position `json:"position"`
}

// antennaEntry is one antenna inside the snapshot body.
type antennaEntry struct {
	ID       uint64         `json:"id"`
	Name     string         `json:"name"`
	Grid     string         `json:"grid"`
	Position world.Position `json:"position"`
}

// antennaSnapshot is the JSON body of the server-wide antenna broadcast.
type antennaSnapshot struct {
	Server     string         `json:"server"`
	ServerName string         `json:"server_name"`
	ServerSSRC uint32         `json:"server_ssrc"`
	Type       string         `json:"type"`
	Count      int            `json:"count"`
	Antennas   []antennaEntry `json:"antennas"`
}

// buildAntennaBody marshals the antenna snapshot, dropping antennas from
// the tail until the body fits the frame's 16-bit length field. The
// mixing server keys snapshots by SSRC and keeps only the latest body,
// so splitting across frames would make them overwrite each other;
// deterministic truncation with an honest count is the least bad option.
// Returns the body, the number of antennas retained, and the number
// dropped.
func buildAntennaBody(serverTag, serverName string, serverSSRC uint32, antennas []world.Antenna) ([]byte, int, int, error) {
	entries := make([]antennaEntry, len(antennas))
	for i, a := range antennas {
		entries[i] = antennaEntry{ID: a.EntityID, Name: a.Name, Grid: a.Grid, Position: a.Position}
	}

	dropped := 0
	for {
		body, err := json.Marshal(antennaSnapshot{
			Server:     serverTag,
			ServerName: serverName,
			ServerSSRC: serverSSRC,
			Type:       "antenna_snapshot",
			Count:      len(entries),
			Antennas:   entries,
		})
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to marshal antenna snapshot: %w", err)
		}
		if len(body) <= protocol.MaxBodySize || len(entries) == 0 {
			return body, len(entries), dropped, nil
		}

		// Shed enough tail entries to cover the excess in one or two
		// passes instead of re-marshaling per antenna.
		excess := len(body) - protocol.MaxBodySize
		avg := len(body) / (len(entries) + 1)
		shed := excess/avg + 1
		if shed > len(entries) {
			shed = len(entries)
		}
		entries = entries[:len(entries)-shed]
		dropped += shed
	}
}
