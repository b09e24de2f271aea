package ssrc

import (
	"fmt"
	"hash/fnv"
)

// resaltSuffix is appended to a player seed when the first derivation
// collides with the owning server's SSRC.
const resaltSuffix = ":resalt"

// Derive maps an arbitrary seed string to a stable non-zero 32-bit
// identifier using FNV-1a. The same seed always yields the same value,
// in-process and across processes, so independently-run servers and the
// mixing server agree on identifiers without a handshake. Zero is
// reserved for "unset", so a raw hash of zero folds to 1.
func Derive(seed string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(seed))
	v := h.Sum32()
	if v == 0 {
		return 1
	}
	return v
}

// ForServer derives the SSRC for a server identity from its display name.
func ForServer(serverName string) uint32 {
	return Derive("SERVER:" + serverName)
}

// ForPlayer derives the SSRC for a player, salted with the owning
// server's SSRC so the same Steam ID on two servers maps to two distinct
// identifiers. The result never equals serverSSRC: a colliding
// derivation is re-salted, and if the re-salted value still collides the
// reserved fallback 1 is returned.
func ForPlayer(serverSSRC uint32, steamID uint64) uint32 {
	seed := fmt.Sprintf("%d:%d", serverSSRC, steamID)
	v := Derive(seed)
	if v != 0 && v != serverSSRC {
		return v
	}
	v = Derive(seed + resaltSuffix)
	if v != 0 && v != serverSSRC {
		return v
	}
	return 1
}

// ForAntennas returns the SSRC used for antenna-snapshot messages.
// Antennas are not per-player subjects; the snapshot is a server-wide
// broadcast tagged with the server's own SSRC.
func ForAntennas(serverSSRC uint32) uint32 {
	if serverSSRC == 0 {
		return 1
	}
	return serverSSRC
}
