package forward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/config"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/identity"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/metrics"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/protocol"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/ssrc"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/world"
)

// summaryRetention is how many tick summaries the diagnostics endpoint
// can look back on.
const summaryRetention = 32

// SessionEvent is a discrete lifecycle notification from the hosting
// simulation.
type SessionEvent int

const (
	SessionLoaded SessionEvent = iota
	SessionUnloading
	SessionUnloaded
)

// String returns a human-readable event name.
func (e SessionEvent) String() string {
	switch e {
	case SessionLoaded:
		return "session_loaded"
	case SessionUnloading:
		return "session_unloading"
	case SessionUnloaded:
		return "session_unloaded"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// Transport is the outbound channel the forwarder sends frames through.
type Transport interface {
	Ensure(addr string) error
	Ready() bool
	Send(payload []byte) error
	Close() error
}

// Forwarder runs the periodic telemetry loop: snapshot the world, build
// per-player position messages and one antenna broadcast, encode, and
// fire them at the mixing server. It is either Stopped or Running;
// session lifecycle events drive the transitions. Every per-item
// failure inside a tick is contained and recorded, never thrown.
type Forwarder struct {
	radio     config.RadioConfig
	idStore   *identity.Store
	source    world.Source
	transport Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics
	encoder   *protocol.Encoder

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ident   *identity.Identity

	sumMu     sync.Mutex
	summaries *summaryRing
}

// New wires a forwarder from its collaborators. Nothing starts until a
// SessionLoaded event (or an explicit Start).
func New(radio config.RadioConfig, idStore *identity.Store, source world.Source, tr Transport, logger *slog.Logger, m *metrics.Metrics) *Forwarder {
	return &Forwarder{
		radio:     radio,
		idStore:   idStore,
		source:    source,
		transport: tr,
		logger:    logger,
		metrics:   m,
		encoder:   protocol.NewEncoder(),
		summaries: newSummaryRing(summaryRetention),
	}
}

// HandleSessionEvent maps lifecycle transitions onto Start/Stop. Safe
// to call from any goroutine, concurrently with an in-flight tick.
func (f *Forwarder) HandleSessionEvent(ev SessionEvent) {
	f.logger.Debug("Session event", slog.String("event", ev.String()))

	switch ev {
	case SessionLoaded:
		f.Start()
	case SessionUnloading, SessionUnloaded:
		f.Stop()
	}
}

// Start transitions to Running: refresh the persisted identity,
// (re)acquire the transport, and begin ticking, first tick immediately.
// A disabled configuration leaves the forwarder Stopped. Starting a
// Running forwarder is a no-op.
func (f *Forwarder) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return
	}
	if !f.radio.Enabled {
		f.logger.Info("Telemetry forwarding disabled in config, not starting")
		return
	}

	ident, err := f.idStore.Refresh(f.radio.ServerTag)
	if err != nil {
		// The in-memory identity is still usable; only persistence failed.
		f.logger.Warn("Failed to persist identity", slog.String("error", err.Error()))
	}
	f.ident = ident

	if err := f.transport.Ensure(f.radio.Addr()); err != nil {
		// Keep going: the tick path re-ensures until the dial succeeds.
		f.logger.Error("Failed to open UDP transport", slog.String("error", err.Error()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.running = true
	f.metrics.SetForwarderActive(true)

	f.wg.Add(1)
	go f.runLoop(ctx, *ident)

	f.logger.Info("Telemetry forwarding started",
		slog.String("server_name", ident.ServerName),
		slog.Uint64("server_ssrc", uint64(ident.ServerSSRC)),
		slog.String("target", f.radio.Addr()),
		slog.Duration("interval", f.radio.GetUpdateInterval()),
	)
}

// Stop cancels the pending tick wait, waits for an in-flight tick to
// finish, and releases the transport. Stopping a Stopped forwarder is a
// no-op.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}

	f.cancel()
	f.wg.Wait()
	f.running = false
	f.cancel = nil
	f.metrics.SetForwarderActive(false)

	if err := f.transport.Close(); err != nil {
		f.logger.Warn("Error closing UDP transport", slog.String("error", err.Error()))
	}

	f.logger.Info("Telemetry forwarding stopped")
}

// Dispose forces the forwarder to Stopped and releases all owned
// resources unconditionally.
func (f *Forwarder) Dispose() {
	f.Stop()
	f.transport.Close()
}

// Running reports whether the tick loop is active.
func (f *Forwarder) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Identity returns the identity currently in effect, or nil before the
// first Start.
func (f *Forwarder) Identity() *identity.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ident
}

// LastSummaries returns retained tick summaries, oldest first.
func (f *Forwarder) LastSummaries() []TickSummary {
	f.sumMu.Lock()
	defer f.sumMu.Unlock()
	return f.summaries.snapshot()
}

// runLoop is the single tick goroutine. The first tick fires
// immediately; later ticks follow the configured interval. Only the
// inter-tick wait suspends; ticks never overlap.
func (f *Forwarder) runLoop(ctx context.Context, ident identity.Identity) {
	defer f.wg.Done()

	f.runTick(ctx, &ident)

	ticker := time.NewTicker(f.radio.GetUpdateInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.runTick(ctx, &ident)
		}
	}
}

// runTick executes one tick and records its summary.
func (f *Forwarder) runTick(ctx context.Context, ident *identity.Identity) {
	start := time.Now()
	summary := f.tick(ctx, ident)
	elapsed := time.Since(start)

	f.metrics.Ticks.Inc()
	f.metrics.TickDuration.Observe(elapsed.Seconds())
	f.metrics.PlayersSeen.Add(float64(summary.PlayersSeen))
	f.metrics.PlayersSent.Add(float64(summary.PlayersSent))
	f.metrics.AntennasSent.Add(float64(summary.AntennasSent))
	f.metrics.AntennasDropped.Add(float64(summary.AntennasDropped))
	for _, fail := range summary.Failures {
		f.metrics.RecordItemFailure(fail.Stage)
	}

	f.sumMu.Lock()
	f.summaries.add(summary)
	f.sumMu.Unlock()

	f.logger.Debug("Forward tick complete",
		slog.Int("players_seen", summary.PlayersSeen),
		slog.Int("players_sent", summary.PlayersSent),
		slog.Int("antennas_sent", summary.AntennasSent),
		slog.Int("failures", len(summary.Failures)),
		slog.Duration("elapsed", elapsed),
	)
}

// tick builds and sends one round of telemetry. Player messages are all
// attempted before the antenna broadcast; a failing player never aborts
// the rest of the tick.
func (f *Forwarder) tick(ctx context.Context, ident *identity.Identity) TickSummary {
	summary := TickSummary{At: time.Now()}

	if !f.transport.Ready() {
		if err := f.transport.Ensure(f.radio.Addr()); err != nil {
			summary.fail(StageTransport, "", err)
			f.logger.Warn("UDP transport unavailable, skipping tick", slog.String("error", err.Error()))
			return summary
		}
	}

	snap, err := f.source.Snapshot(ctx)
	if err != nil {
		summary.fail(StageSnapshot, "", err)
		f.logger.Debug("World snapshot unavailable", slog.String("error", err.Error()))
		return summary
	}

	summary.PlayersSeen = len(snap.Players)
	for i := range snap.Players {
		select {
		case <-ctx.Done():
			return summary
		default:
		}

		p := &snap.Players[i]
		if err := f.sendPlayer(ident, p); err != nil {
			if errors.Is(err, errSkipped) {
				continue
			}
			summary.fail(StagePlayer, fmt.Sprintf("steam:%d", p.SteamID), err)
			f.logger.Debug("Player position not sent",
				slog.Uint64("steam_id", p.SteamID),
				slog.String("error", err.Error()),
			)
			continue
		}
		summary.PlayersSent++
	}

	sent, dropped, err := f.sendAntennas(ident, snap.Antennas)
	if err != nil {
		summary.fail(StageAntenna, "", err)
		f.logger.Debug("Antenna snapshot not sent", slog.String("error", err.Error()))
	} else {
		summary.AntennasSent = sent
		summary.AntennasDropped = dropped
	}

	return summary
}

// errSkipped marks players filtered out by eligibility, as opposed to
// players that failed.
var errSkipped = errors.New("player skipped")

func (f *Forwarder) sendPlayer(ident *identity.Identity, p *world.Player) error {
	if p.Error != "" {
		return fmt.Errorf("world query failed: %s", p.Error)
	}
	if !p.Eligible() {
		return errSkipped
	}

	playerSSRC := ssrc.ForPlayer(ident.ServerSSRC, p.SteamID)
	body, err := json.Marshal(playerPosition{
		Server:     f.radio.ServerTag,
		ServerName: ident.ServerName,
		ServerSSRC: ident.ServerSSRC,
		PlayerSSRC: playerSSRC,
		GUID:       p.GUID,
		SteamID:    p.SteamID,
		IdentityID: p.IdentityID,
		Position:   p.Position,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal player position: %w", err)
	}

	frame, err := f.encoder.Encode(protocol.CtrlPosition, playerSSRC, body)
	if err != nil {
		f.metrics.EncodeErrors.Inc()
		return err
	}
	if err := f.transport.Send(frame); err != nil {
		f.metrics.SendErrors.Inc()
		return err
	}
	f.metrics.RecordPacketSent()
	return nil
}

func (f *Forwarder) sendAntennas(ident *identity.Identity, antennas []world.Antenna) (sent, dropped int, err error) {
	usable := world.UsableAntennas(antennas)

	body, kept, dropped, err := buildAntennaBody(f.radio.ServerTag, ident.ServerName, ident.ServerSSRC, usable)
	if err != nil {
		return 0, 0, err
	}
	if dropped > 0 {
		f.logger.Warn("Antenna snapshot truncated to fit frame body limit",
			slog.Int("kept", kept),
			slog.Int("dropped", dropped),
		)
	}

	frame, err := f.encoder.Encode(protocol.CtrlPosition, ssrc.ForAntennas(ident.ServerSSRC), body)
	if err != nil {
		f.metrics.EncodeErrors.Inc()
		return 0, 0, err
	}
	if err := f.transport.Send(frame); err != nil {
		f.metrics.SendErrors.Inc()
		return 0, 0, err
	}
	f.metrics.RecordPacketSent()
	return kept, dropped, nil
}
