package forward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/config"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/identity"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/metrics"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/protocol"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/ssrc"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/world"
)

// fakeTransport records sent frames in memory.
type fakeTransport struct {
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
	closed  int
}

func (t *fakeTransport) Ensure(addr string) error { return nil }
func (t *fakeTransport) Ready() bool              { return true }

func (t *fakeTransport) Send(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.frames = append(t.frames, append([]byte(nil), payload...))
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *fakeTransport) sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.frames...)
}

// fakeSource serves a fixed snapshot or error.
type fakeSource struct {
	snap *world.Snapshot
	err  error
}

func (s *fakeSource) Snapshot(ctx context.Context) (*world.Snapshot, error) {
	return s.snap, s.err
}

func testRadio(enabled bool) config.RadioConfig {
	return config.RadioConfig{
		ServerHost:       "127.0.0.1",
		ServerPort:       8765,
		UpdateIntervalMs: 100,
		Enabled:          enabled,
		ServerTag:        "test-colony",
	}
}

func newTestForwarder(t *testing.T, radio config.RadioConfig, source world.Source, tr Transport) *Forwarder {
	t.Helper()
	idStore := identity.NewStore(filepath.Join(t.TempDir(), "identity.yaml"), nil)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(radio, idStore, source, tr, logger, m)
}

func testIdentity() *identity.Identity {
	return &identity.Identity{
		ServerName: "test-colony",
		ServerSSRC: ssrc.ForServer("test-colony"),
	}
}

func decodeBody(t *testing.T, frame []byte) (*protocol.Frame, map[string]interface{}) {
	t.Helper()
	f, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("sent frame does not decode: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(f.Body, &body); err != nil {
		t.Fatalf("frame body is not JSON: %v", err)
	}
	return f, body
}

func TestTickScenario(t *testing.T) {
	// Two online players, one dead; three antennas across two grids with
	// one duplicate entity id. Expect exactly one player position and one
	// antenna snapshot with count 2.
	snap := &world.Snapshot{
		Players: []world.Player{
			{SteamID: 76561198000000001, IdentityID: 144, GUID: "p1", HasCharacter: true,
				Position: world.Position{X: 10, Y: 20, Z: 30}},
			{SteamID: 76561198000000002, IdentityID: 145, GUID: "p2", HasCharacter: true, Dead: true},
		},
		Antennas: []world.Antenna{
			{EntityID: 100, Name: "Relay A", Grid: "Base", Enabled: true, Functional: true, Working: true},
			{EntityID: 200, Name: "Relay B", Grid: "Miner", Enabled: true, Functional: true, Working: true},
			{EntityID: 100, Name: "Relay A again", Grid: "Base", Enabled: true, Functional: true, Working: true},
		},
	}

	tr := &fakeTransport{}
	f := newTestForwarder(t, testRadio(true), &fakeSource{snap: snap}, tr)
	ident := testIdentity()

	summary := f.tick(context.Background(), ident)

	if summary.PlayersSeen != 2 {
		t.Errorf("PlayersSeen = %d, want 2", summary.PlayersSeen)
	}
	if summary.PlayersSent != 1 {
		t.Errorf("PlayersSent = %d, want 1", summary.PlayersSent)
	}
	if summary.AntennasSent != 2 {
		t.Errorf("AntennasSent = %d, want 2", summary.AntennasSent)
	}
	if len(summary.Failures) != 0 {
		t.Errorf("Failures = %+v, want none", summary.Failures)
	}

	frames := tr.sent()
	if len(frames) != 2 {
		t.Fatalf("sent %d frames, want 2 (player + antenna snapshot)", len(frames))
	}

	// Player frame first, tagged with the player's derived SSRC.
	pf, pbody := decodeBody(t, frames[0])
	wantPlayerSSRC := ssrc.ForPlayer(ident.ServerSSRC, 76561198000000001)
	if pf.SSRC != wantPlayerSSRC {
		t.Errorf("player frame SSRC = %d, want %d", pf.SSRC, wantPlayerSSRC)
	}
	if pf.CtrlCode != protocol.CtrlPosition {
		t.Errorf("player frame ctrl code = %d, want position", pf.CtrlCode)
	}
	if pbody["server_name"] != "test-colony" {
		t.Errorf("server_name = %v, want test-colony", pbody["server_name"])
	}
	if pbody["guid"] != "p1" {
		t.Errorf("guid = %v, want p1", pbody["guid"])
	}
	if pos, ok := pbody["position"].(map[string]interface{}); !ok || pos["x"] != 10.0 {
		t.Errorf("position = %v, want x=10", pbody["position"])
	}

	// Antenna snapshot second, on the server's own SSRC, deduplicated.
	af, abody := decodeBody(t, frames[1])
	if af.SSRC != ident.ServerSSRC {
		t.Errorf("antenna frame SSRC = %d, want server SSRC %d", af.SSRC, ident.ServerSSRC)
	}
	if abody["type"] != "antenna_snapshot" {
		t.Errorf("type = %v, want antenna_snapshot", abody["type"])
	}
	if abody["count"] != 2.0 {
		t.Errorf("count = %v, want 2", abody["count"])
	}
	antennas, ok := abody["antennas"].([]interface{})
	if !ok || len(antennas) != 2 {
		t.Fatalf("antennas = %v, want 2 entries", abody["antennas"])
	}
}

func TestTickPlayerFailureContained(t *testing.T) {
	// The world query failed for one of three players; the other two
	// still produce position messages and nothing escapes the tick.
	snap := &world.Snapshot{
		Players: []world.Player{
			{SteamID: 1, GUID: "a", HasCharacter: true},
			{SteamID: 2, GUID: "b", HasCharacter: true, Error: "character lookup timed out"},
			{SteamID: 3, GUID: "c", HasCharacter: true},
		},
	}

	tr := &fakeTransport{}
	f := newTestForwarder(t, testRadio(true), &fakeSource{snap: snap}, tr)

	summary := f.tick(context.Background(), testIdentity())

	if summary.PlayersSent != 2 {
		t.Errorf("PlayersSent = %d, want 2", summary.PlayersSent)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("Failures = %+v, want exactly 1", summary.Failures)
	}
	if summary.Failures[0].Stage != StagePlayer {
		t.Errorf("failure stage = %q, want %q", summary.Failures[0].Stage, StagePlayer)
	}
	if summary.Failures[0].Subject != "steam:2" {
		t.Errorf("failure subject = %q, want steam:2", summary.Failures[0].Subject)
	}

	// Two player frames plus the (empty) antenna snapshot.
	if got := len(tr.sent()); got != 3 {
		t.Errorf("sent %d frames, want 3", got)
	}
}

func TestTickSendFailureContained(t *testing.T) {
	snap := &world.Snapshot{
		Players: []world.Player{{SteamID: 1, GUID: "a", HasCharacter: true}},
	}

	tr := &fakeTransport{sendErr: errors.New("network is unreachable")}
	f := newTestForwarder(t, testRadio(true), &fakeSource{snap: snap}, tr)

	summary := f.tick(context.Background(), testIdentity())

	if summary.PlayersSent != 0 {
		t.Errorf("PlayersSent = %d, want 0", summary.PlayersSent)
	}
	// One player failure and one antenna failure, both contained.
	if len(summary.Failures) != 2 {
		t.Errorf("Failures = %+v, want 2", summary.Failures)
	}
}

func TestTickSnapshotErrorContained(t *testing.T) {
	tr := &fakeTransport{}
	f := newTestForwarder(t, testRadio(true), &fakeSource{err: errors.New("simulation not connected")}, tr)

	summary := f.tick(context.Background(), testIdentity())

	if len(summary.Failures) != 1 || summary.Failures[0].Stage != StageSnapshot {
		t.Errorf("Failures = %+v, want one snapshot-stage failure", summary.Failures)
	}
	if got := len(tr.sent()); got != 0 {
		t.Errorf("sent %d frames, want 0", got)
	}
}

func TestSequenceNumbersIncrease(t *testing.T) {
	snap := &world.Snapshot{
		Players: []world.Player{
			{SteamID: 1, GUID: "a", HasCharacter: true},
			{SteamID: 2, GUID: "b", HasCharacter: true},
		},
	}

	tr := &fakeTransport{}
	f := newTestForwarder(t, testRadio(true), &fakeSource{snap: snap}, tr)
	ident := testIdentity()

	for i := 0; i < 3; i++ {
		f.tick(context.Background(), ident)
	}

	frames := tr.sent()
	if len(frames) != 9 { // (2 players + 1 antenna snapshot) per tick
		t.Fatalf("sent %d frames, want 9", len(frames))
	}

	var prev uint16
	for i, raw := range frames {
		frame, err := protocol.Decode(raw)
		if err != nil {
			t.Fatalf("frame %d does not decode: %v", i, err)
		}
		if i > 0 && frame.Seq != prev+1 {
			t.Errorf("frame %d: Seq = %d, want %d", i, frame.Seq, prev+1)
		}
		prev = frame.Seq
	}
}

func TestStartDisabledStaysStopped(t *testing.T) {
	tr := &fakeTransport{}
	f := newTestForwarder(t, testRadio(false), &fakeSource{snap: &world.Snapshot{}}, tr)

	f.HandleSessionEvent(SessionLoaded)

	if f.Running() {
		t.Error("forwarder Running with enabled=false")
	}

	time.Sleep(150 * time.Millisecond)
	if got := len(tr.sent()); got != 0 {
		t.Errorf("sent %d frames while disabled, want 0", got)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	snap := &world.Snapshot{
		Players: []world.Player{{SteamID: 1, GUID: "a", HasCharacter: true}},
	}

	tr := &fakeTransport{}
	f := newTestForwarder(t, testRadio(true), &fakeSource{snap: snap}, tr)

	f.HandleSessionEvent(SessionLoaded)
	if !f.Running() {
		t.Fatal("forwarder not Running after session loaded")
	}
	if f.Identity() == nil {
		t.Fatal("no identity in effect after Start")
	}

	// Starting again is a no-op.
	f.HandleSessionEvent(SessionLoaded)
	if !f.Running() {
		t.Fatal("second session loaded stopped the forwarder")
	}

	// The immediate first tick produces one player frame and one antenna
	// snapshot.
	deadline := time.Now().Add(2 * time.Second)
	for len(tr.sent()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(tr.sent()); got < 2 {
		t.Fatalf("sent %d frames after start, want at least 2", got)
	}

	f.HandleSessionEvent(SessionUnloaded)
	if f.Running() {
		t.Fatal("forwarder still Running after session unloaded")
	}

	// Stopping again is a no-op.
	f.HandleSessionEvent(SessionUnloaded)

	sentBefore := len(tr.sent())
	time.Sleep(250 * time.Millisecond)
	if got := len(tr.sent()); got != sentBefore {
		t.Errorf("frames kept flowing after stop: %d -> %d", sentBefore, got)
	}
}

func TestDisposeReleasesTransport(t *testing.T) {
	tr := &fakeTransport{}
	f := newTestForwarder(t, testRadio(true), &fakeSource{snap: &world.Snapshot{}}, tr)

	f.Start()
	f.Dispose()

	if f.Running() {
		t.Error("forwarder Running after Dispose")
	}
	tr.mu.Lock()
	closed := tr.closed
	tr.mu.Unlock()
	if closed == 0 {
		t.Error("Dispose did not close the transport")
	}
}

func TestTickSummariesRetained(t *testing.T) {
	snap := &world.Snapshot{
		Players: []world.Player{{SteamID: 1, GUID: "a", HasCharacter: true}},
	}

	tr := &fakeTransport{}
	f := newTestForwarder(t, testRadio(true), &fakeSource{snap: snap}, tr)
	ident := testIdentity()

	for i := 0; i < summaryRetention+5; i++ {
		f.runTick(context.Background(), ident)
	}

	summaries := f.LastSummaries()
	if len(summaries) != summaryRetention {
		t.Fatalf("retained %d summaries, want %d", len(summaries), summaryRetention)
	}
	for i, s := range summaries {
		if s.PlayersSent != 1 {
			t.Errorf("summary %d: PlayersSent = %d, want 1", i, s.PlayersSent)
		}
	}
}

func TestBuildAntennaBodyTruncates(t *testing.T) {
	// Enough long-named antennas to overflow the 16-bit body length.
	antennas := make([]world.Antenna, 2000)
	for i := range antennas {
		antennas[i] = world.Antenna{
			EntityID: uint64(i + 1),
			Name:     fmt.Sprintf("Long Range Broadcast Relay Antenna %04d", i),
			Grid:     fmt.Sprintf("Outpost Grid %04d", i),
			Enabled:  true, Functional: true, Working: true,
		}
	}

	body, kept, dropped, err := buildAntennaBody("tag", "server", 42, antennas)
	if err != nil {
		t.Fatalf("buildAntennaBody failed: %v", err)
	}
	if len(body) > protocol.MaxBodySize {
		t.Errorf("body length %d exceeds frame limit", len(body))
	}
	if kept+dropped != len(antennas) {
		t.Errorf("kept %d + dropped %d != %d antennas", kept, dropped, len(antennas))
	}
	if dropped == 0 {
		t.Error("expected truncation for oversized catalog")
	}

	// The count field must reflect what the body actually carries.
	var decoded struct {
		Count    int               `json:"count"`
		Antennas []json.RawMessage `json:"antennas"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("truncated body is not valid JSON: %v", err)
	}
	if decoded.Count != kept || len(decoded.Antennas) != kept {
		t.Errorf("count = %d, entries = %d, want both %d", decoded.Count, len(decoded.Antennas), kept)
	}
}

func TestBuildAntennaBodySmallCatalogUntouched(t *testing.T) {
	antennas := []world.Antenna{
		{EntityID: 1, Name: "Relay", Grid: "Base", Enabled: true, Functional: true, Working: true},
	}

	body, kept, dropped, err := buildAntennaBody("tag", "server", 42, antennas)
	if err != nil {
		t.Fatalf("buildAntennaBody failed: %v", err)
	}
	if kept != 1 || dropped != 0 {
		t.Errorf("kept = %d, dropped = %d, want 1 and 0", kept, dropped)
	}
	if len(body) > protocol.MaxBodySize {
		t.Errorf("body length %d exceeds frame limit", len(body))
	}
}
