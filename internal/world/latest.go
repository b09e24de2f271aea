package world

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSnapshot is returned before the simulation has delivered any
// world state.
var ErrNoSnapshot = errors.New("no world snapshot available yet")

// Latest holds the most recent snapshot and serves it as a Source. The
// ingest side writes, the forwarder reads; snapshots are treated as
// immutable once stored.
type Latest struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewLatest returns an empty holder.
func NewLatest() *Latest {
	return &Latest{}
}

// Set stores a new snapshot.
func (l *Latest) Set(s *Snapshot) {
	l.mu.Lock()
	l.snap = s
	l.mu.Unlock()
}

// Clear drops the stored snapshot, returning the holder to its empty
// state. Called when a session ends so the next session's first tick
// cannot forward stale world state.
func (l *Latest) Clear() {
	l.mu.Lock()
	l.snap = nil
	l.mu.Unlock()
}

// Ready reports whether a snapshot has been stored.
func (l *Latest) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap != nil
}

// Snapshot implements Source.
func (l *Latest) Snapshot(ctx context.Context) (*Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.snap == nil {
		return nil, ErrNoSnapshot
	}
	return l.snap, nil
}
