package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/forward"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/world"
)

const maxIngestMessageSize = 4 << 20 // 4 MB, thousands of entities fit comfortably

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 4 * 1024,
	// The simulation connects from the same host or a trusted network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ingestMessage is one JSON message on the ingest socket.
type ingestMessage struct {
	Type     string          `json:"type"`
	Players  []world.Player  `json:"players"`
	Antennas []world.Antenna `json:"antennas"`
}

// ingestConn tracks one simulation connection.
type ingestConn struct {
	ws        *websocket.Conn
	closeOnce sync.Once
}

func (c *ingestConn) close() {
	c.closeOnce.Do(func() {
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "superseded"),
			time.Now().Add(time.Second))
		c.ws.Close()
	})
}

// handleIngest upgrades the simulation's connection and pumps world
// snapshots from it. The connection lifecycle doubles as the session
// lifecycle: upgrade means session loaded, close means session
// unloaded. A second connection supersedes the first.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Ingest upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}
	ws.SetReadLimit(maxIngestMessageSize)

	conn := &ingestConn{ws: ws}

	s.mu.Lock()
	prev := s.current
	s.current = conn
	s.mu.Unlock()

	if prev != nil {
		s.logger.Warn("New simulation connection supersedes previous one",
			slog.String("remote_addr", r.RemoteAddr),
		)
		prev.close()
	}

	s.logger.Info("Simulation connected",
		slog.String("remote_addr", r.RemoteAddr),
	)
	s.metrics.SetIngestConnected(true)
	s.onSessionEvent(forward.SessionLoaded)

	s.readLoop(conn, r.RemoteAddr)
}

// readLoop consumes ingest messages until the connection drops.
func (s *Server) readLoop(conn *ingestConn, remoteAddr string) {
	for {
		_, payload, err := conn.ws.ReadMessage()
		if err != nil {
			break
		}

		var msg ingestMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.metrics.IngestErrors.Inc()
			s.logger.Warn("Malformed ingest message",
				slog.String("remote_addr", remoteAddr),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch msg.Type {
		case "world_snapshot":
			s.cache.Set(&world.Snapshot{
				Players:    msg.Players,
				Antennas:   msg.Antennas,
				CapturedAt: time.Now(),
			})
			s.metrics.SnapshotsIngested.Inc()

		case "session_unloading":
			s.logger.Info("Simulation announced session unloading",
				slog.String("remote_addr", remoteAddr),
			)
			s.onSessionEvent(forward.SessionUnloading)

		default:
			s.metrics.IngestErrors.Inc()
			s.logger.Warn("Unknown ingest message type",
				slog.String("remote_addr", remoteAddr),
				slog.String("type", msg.Type),
			)
		}
	}

	conn.close()

	// Only the still-active connection ends the session; a superseded
	// connection dying must not stop the new session's forwarding.
	s.mu.Lock()
	active := s.current == conn
	if active {
		s.current = nil
	}
	s.mu.Unlock()

	if active {
		s.logger.Info("Simulation disconnected", slog.String("remote_addr", remoteAddr))
		s.metrics.SetIngestConnected(false)
		// Drop the session's world state before the unload event so a
		// later session cannot start off the old snapshot.
		s.cache.Clear()
		s.onSessionEvent(forward.SessionUnloaded)
	}
}
