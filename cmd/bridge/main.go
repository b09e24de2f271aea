package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/config"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/forward"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/identity"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/metrics"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/server"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/transport"
	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/world"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "colony-radio-bridge"
	serviceVersion    = "2.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	writeDefault := flag.Bool("write-default-config", false, "Write a default config file to the config path and exit")
	flag.Parse()

	if *writeDefault {
		if err := config.Save(config.Default(), *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write default config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// A missing or broken config is an operator error; there is no
	// sensible fallback target for the telemetry stream.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	// Persist the clamped view so a hand-edited file converges to valid
	// values on disk. The loaded config is already usable; a read-only
	// config directory only costs the rewrite.
	if err := config.Save(cfg, *configPath); err != nil {
		logger.Warn("Failed to rewrite configuration", slog.String("error", err.Error()))
	}

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)
	logger.Info("Configuration loaded",
		slog.String("radio_target", cfg.Radio.Addr()),
		slog.Int("update_interval_ms", cfg.Radio.UpdateIntervalMs),
		slog.Bool("enabled", cfg.Radio.Enabled),
		slog.String("server_tag", cfg.Radio.ServerTag),
		slog.String("identity_path", cfg.Identity.Path),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)

	cache := world.NewLatest()
	idStore := identity.NewStore(cfg.Identity.Path, cfg.Identity.FallbackPaths)
	udp := transport.NewUDP(logger)

	forwarder := forward.New(cfg.Radio, idStore, cache, udp, logger, appMetrics)

	srv := server.New(cfg, logger, appMetrics, cache, forwarder, forwarder.HandleSessionEvent)
	if cfg.HTTP.Enabled {
		if err := srv.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		logger.Warn("HTTP server disabled; no ingest endpoint, forwarder will idle")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started, waiting for simulation to connect",
		slog.String("ingest_url", fmt.Sprintf("ws://%s:%d/v1/ingest", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	forwarder.Dispose()

	logger.Info("Service stopped")
}

// initLogger creates the structured logger from the logging config.
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
