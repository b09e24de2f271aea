package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/config"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/forward"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/identity"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/metrics"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/world"
)

// ForwarderStatus is the slice of forwarder state the diagnostics
// endpoints report on.
type ForwarderStatus interface {
	Running() bool
	Identity() *identity.Identity
	LastSummaries() []forward.TickSummary
}

// Server hosts the simulation-facing ingest WebSocket and the
// diagnostics HTTP API. Ingested snapshots land in the shared
// world.Latest cache the forwarder reads from.
type Server struct {
	server    *http.Server
	logger    *slog.Logger
	config    config.HTTPConfig
	appConfig *config.Config
	metrics   *metrics.Metrics
	cache     *world.Latest
	forwarder ForwarderStatus

	// onSessionEvent receives lifecycle transitions derived from the
	// ingest connection.
	onSessionEvent func(forward.SessionEvent)

	startTime time.Time

	mu      sync.RWMutex
	current *ingestConn
}

// New creates the ingest/diagnostics server. onSessionEvent must be
// safe to call from connection goroutines.
func New(appConfig *config.Config, logger *slog.Logger, m *metrics.Metrics,
	cache *world.Latest, fwd ForwarderStatus, onSessionEvent func(forward.SessionEvent)) *Server {

	s := &Server{
		logger:         logger,
		config:         appConfig.HTTP,
		appConfig:      appConfig,
		metrics:        m,
		cache:          cache,
		forwarder:      fwd,
		onSessionEvent: onSessionEvent,
		startTime:      time.Now(),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// setupRoutes configures HTTP routes.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Simulation-facing ingest socket
	mux.HandleFunc("/v1/ingest", s.handleIngest)

	// Diagnostics
	mux.HandleFunc("/healthz", s.withMetrics("/healthz", s.handleHealth))
	mux.HandleFunc("/v1/stats", s.withMetrics("/v1/stats", s.handleStats))
	mux.HandleFunc("/v1/config", s.withMetrics("/v1/config", s.handleConfig))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())
}

// withMetrics wraps an HTTP handler with request counting.
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)
		s.metrics.RecordHTTPRequest(r.Method, endpoint, fmt.Sprintf("%d", ww.statusCode))
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler exposes the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("Starting ingest/diagnostics server",
		slog.String("address", s.server.Addr),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server and drops the ingest connection.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping ingest/diagnostics server...")

	s.mu.Lock()
	if s.current != nil {
		s.current.close()
		s.current = nil
	}
	s.mu.Unlock()

	return s.server.Shutdown(ctx)
}

// handleHealth implements the /healthz endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	connected := s.current != nil
	s.mu.RUnlock()
	hasSnapshot := s.cache.Ready()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
		"components": map[string]interface{}{
			"ingest": map[string]interface{}{
				"simulation_connected": connected,
				"snapshot_available":   hasSnapshot,
			},
			"forwarder": map[string]interface{}{
				"running": s.forwarder.Running(),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements the /v1/stats endpoint.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(s.startTime).String(),
		"timestamp": time.Now().UTC(),
		"forwarder": map[string]interface{}{
			"running":      s.forwarder.Running(),
			"recent_ticks": s.forwarder.LastSummaries(),
		},
	}
	if ident := s.forwarder.Identity(); ident != nil {
		stats["identity"] = map[string]interface{}{
			"server_name": ident.ServerName,
			"server_ssrc": ident.ServerSSRC,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleConfig implements the /v1/config endpoint.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := map[string]interface{}{
		"radio": map[string]interface{}{
			"server_host":        s.appConfig.Radio.ServerHost,
			"server_port":        s.appConfig.Radio.ServerPort,
			"update_interval_ms": s.appConfig.Radio.UpdateIntervalMs,
			"enabled":            s.appConfig.Radio.Enabled,
			"server_tag":         s.appConfig.Radio.ServerTag,
		},
		"logging": map[string]interface{}{
			"level":  s.appConfig.Logging.Level,
			"format": s.appConfig.Logging.Format,
			"output": s.appConfig.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}
