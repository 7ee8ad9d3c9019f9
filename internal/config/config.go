// ABOUTME: TOML configuration with defaults, validation and env overrides
// ABOUTME: Values come from config.toml, then .env and HUBREMOTE_* variables
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/Sendspin/hubremote/pkg/protocol"
	"github.com/joho/godotenv"
)

const (
	TransportHTTP      = "http"
	TransportWebsocket = "websocket"

	envPrefix = "HUBREMOTE_"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Player    PlayerConfig    `toml:"player"`
	Artwork   ArtworkConfig   `toml:"artwork"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServerConfig describes how to reach the hub
type ServerConfig struct {
	URL            string `toml:"url"`
	Transport      string `toml:"transport"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	PollIntervalMs int    `toml:"poll_interval_ms"`
}

// PlayerConfig configures the local virtual player
type PlayerConfig struct {
	Name                string `toml:"name"`
	ProbeTimeoutSeconds int    `toml:"probe_timeout_seconds"`
	MediaControls       bool   `toml:"media_controls"`
}

// ArtworkConfig configures the artwork cache
type ArtworkConfig struct {
	CacheDir string `toml:"cache_dir"`
	Capacity int    `toml:"capacity"`
}

// DiscoveryConfig configures mDNS discovery of the hub
type DiscoveryConfig struct {
	Enabled        bool `toml:"enabled"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:      TransportHTTP,
			TimeoutSeconds: 15,
			PollIntervalMs: 2000,
		},
		Player: PlayerConfig{
			Name:                "This Device",
			ProbeTimeoutSeconds: 5,
			MediaControls:       true,
		},
		Artwork: ArtworkConfig{
			Capacity: 50,
		},
		Discovery: DiscoveryConfig{
			Enabled:        true,
			TimeoutSeconds: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "hubremote.log",
		},
	}
}

// DefaultPath returns ~/.config/hubremote/config.toml (or the OS equivalent)
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "hubremote", "config.toml")
}

// SecretsDir returns the secret store directory next to the config file
func SecretsDir(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "secrets")
}

// LoadConfig loads configuration from a TOML file, writing defaults when it
// does not exist yet
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv loads .env when present and applies HUBREMOTE_* overrides.
// Variables already set in the environment win over .env.
func (c *Config) ApplyEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}

	strs := map[string]*string{
		"SERVER_URL":  &c.Server.URL,
		"TRANSPORT":   &c.Server.Transport,
		"PLAYER_NAME": &c.Player.Name,
		"ARTWORK_DIR": &c.Artwork.CacheDir,
		"LOG_LEVEL":   &c.Logging.Level,
		"LOG_FORMAT":  &c.Logging.Format,
		"LOG_FILE":    &c.Logging.File,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "POLL_INTERVAL_MS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPOLL_INTERVAL_MS: %w", envPrefix, err)
		}
		c.Server.PollIntervalMs = n
	}
	if v, ok := os.LookupEnv(envPrefix + "DISCOVERY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sDISCOVERY: %w", envPrefix, err)
		}
		c.Discovery.Enabled = b
	}
	return nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write to a temp file and rename so watchers never see a partial file
	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	header := `# Hub Remote configuration
# server.url is the hub address, e.g. http://music.local:8095
# server.transport is "http" or "websocket"

`
	if _, err := tmp.WriteString(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config header: %w", err)
	}

	if err := toml.NewEncoder(tmp).Encode(c); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if err := os.Rename(tmp.Name(), configPath); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid and normalizes the server URL
func (c *Config) Validate() error {
	url, err := protocol.NormalizeBaseURL(c.Server.URL)
	if err != nil {
		return err
	}
	c.Server.URL = url

	if c.Server.Transport != TransportHTTP && c.Server.Transport != TransportWebsocket {
		return fmt.Errorf("invalid transport: %s (must be http or websocket)", c.Server.Transport)
	}
	if c.Server.TimeoutSeconds < 1 {
		return fmt.Errorf("server timeout must be at least 1 second")
	}
	if c.Server.PollIntervalMs < 100 {
		return fmt.Errorf("poll interval must be at least 100ms")
	}

	if c.Player.Name == "" {
		return fmt.Errorf("player name cannot be empty")
	}
	if c.Player.ProbeTimeoutSeconds < 1 {
		return fmt.Errorf("probe timeout must be at least 1 second")
	}

	if c.Artwork.Capacity < 1 {
		return fmt.Errorf("artwork capacity must be at least 1")
	}
	if c.Discovery.TimeoutSeconds < 1 {
		return fmt.Errorf("discovery timeout must be at least 1 second")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}
