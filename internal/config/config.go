package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Clamp bounds for the forwarding settings
const (
	MinUpdateIntervalMs = 100
	MaxUpdateIntervalMs = 60000
	MinPort             = 1
	MaxPort             = 65535

	DefaultServerHost       = "127.0.0.1"
	DefaultServerPort       = 8765
	DefaultUpdateIntervalMs = 1000
	DefaultServerTag        = "default"
)

// Config represents the complete bridge configuration.
type Config struct {
	Radio    RadioConfig    `yaml:"radio"`
	Identity IdentityConfig `yaml:"identity"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RadioConfig describes the outbound telemetry target and cadence.
type RadioConfig struct {
	ServerHost       string `yaml:"server_host"`
	ServerPort       int    `yaml:"server_port"`
	UpdateIntervalMs int    `yaml:"update_interval_ms"`
	Enabled          bool   `yaml:"enabled"`
	ServerTag        string `yaml:"server_tag"` // legacy fallback server name
}

// IdentityConfig locates the persisted identity file. FallbackPaths is
// an ordered list of candidate locations tried when the primary path is
// unreadable; the identity is always written back to Path.
type IdentityConfig struct {
	Path          string   `yaml:"path"`
	FallbackPaths []string `yaml:"fallback_paths"`
}

// HTTPConfig contains the ingest/diagnostics HTTP server configuration.
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		Radio: RadioConfig{
			ServerHost:       DefaultServerHost,
			ServerPort:       DefaultServerPort,
			UpdateIntervalMs: DefaultUpdateIntervalMs,
			Enabled:          true,
			ServerTag:        DefaultServerTag,
		},
		Identity: IdentityConfig{
			Path: "identity.yaml",
		},
		HTTP: HTTPConfig{
			Port:    8088,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file, then clamps all values
// into their valid ranges. A missing or unparsable file is an error the
// operator must fix; unlike the identity store there is no silent
// fallback, because a wrong target host or port means telemetry goes
// nowhere.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.Clamp()

	if err := cfg.HTTP.Validate(); err != nil {
		return nil, fmt.Errorf("http config: %w", err)
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration back to disk.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// Clamp forces every out-of-range or missing value into its valid range
// so a hand-edited file can never produce an unusable forwarder.
func (c *Config) Clamp() {
	c.Radio.Clamp()
	if c.Identity.Path == "" {
		c.Identity.Path = "identity.yaml"
	}
}

// Clamp normalizes the forwarding settings in place.
func (r *RadioConfig) Clamp() {
	if r.ServerHost == "" {
		r.ServerHost = DefaultServerHost
	}
	if r.ServerPort < MinPort {
		r.ServerPort = MinPort
	} else if r.ServerPort > MaxPort {
		r.ServerPort = MaxPort
	}
	if r.UpdateIntervalMs < MinUpdateIntervalMs {
		r.UpdateIntervalMs = MinUpdateIntervalMs
	} else if r.UpdateIntervalMs > MaxUpdateIntervalMs {
		r.UpdateIntervalMs = MaxUpdateIntervalMs
	}
	if r.ServerTag == "" {
		r.ServerTag = DefaultServerTag
	}
}

// Validate validates HTTP configuration.
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
		}
		if h.Address == "" {
			return fmt.Errorf("address cannot be empty when HTTP is enabled")
		}
	}
	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
	return nil
}

// Addr returns the mixing server address in host:port form.
func (r *RadioConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.ServerHost, r.ServerPort)
}

// GetUpdateInterval returns the forwarding interval as a time.Duration.
func (r *RadioConfig) GetUpdateInterval() time.Duration {
	return time.Duration(r.UpdateIntervalMs) * time.Millisecond
}
