package forward

import "time"

// Failure stages for per-item failures inside a tick
const (
	StageSnapshot  = "snapshot"
	StagePlayer    = "player"
	StageAntenna   = "antenna"
	StageTransport = "transport"
)

// ItemFailure is one non-fatal failure recorded during a tick. Failures
// are collected instead of thrown so the tick always runs to completion
// and tests can assert on counts without triggering real I/O errors.
type ItemFailure struct {
	Stage   string `json:"stage"`
	Subject string `json:"subject,omitempty"`
	Error   string `json:"error"`
}

// TickSummary is the diagnostic record of one forwarding tick. It is
// observability only; nothing in the control flow depends on it.
type TickSummary struct {
	At              time.Time     `json:"at"`
	PlayersSeen     int           `json:"players_seen"`
	PlayersSent     int           `json:"players_sent"`
	AntennasSent    int           `json:"antennas_sent"`
	AntennasDropped int           `json:"antennas_dropped,omitempty"`
	Failures        []ItemFailure `json:"failures,omitempty"`
}

func (s *TickSummary) fail(stage, subject string, err error) {
	s.Failures = append(s.Failures, ItemFailure{Stage: stage, Subject: subject, Error: err.Error()})
}

// summaryRing retains the most recent tick summaries for diagnostics.
type summaryRing struct {
	entries []TickSummary
	next    int
	full    bool
}

func newSummaryRing(size int) *summaryRing {
	return &summaryRing{entries: make([]TickSummary, size)}
}

func (r *summaryRing) add(s TickSummary) {
	r.entries[r.next] = s
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// snapshot returns retained summaries, oldest first.
func (r *summaryRing) snapshot() []TickSummary {
	var out []TickSummary
	if r.full {
		out = append(out, r.entries[r.next:]...)
	}
	out = append(out, r.entries[:r.next]...)
	return out
}
