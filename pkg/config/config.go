// Package config loads the daemon configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulsefeed/pulsefeed-go/pkg/stream"
)

// Duration wraps time.Duration for YAML decoding from strings like "5s".
type Duration time.Duration

// UnmarshalYAML decodes a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the daemon configuration.
type Config struct {
	Stream    StreamConfig    `yaml:"stream"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Log       LogConfig       `yaml:"log"`
}

// StreamConfig configures the broadcast cycle engine.
type StreamConfig struct {
	CycleInterval      Duration `yaml:"cycle_interval"`
	SendTimeout        Duration `yaml:"send_timeout"`
	RefreshTimeout     Duration `yaml:"refresh_timeout"`
	MaxConcurrentSends int      `yaml:"max_concurrent_sends"`
}

// HTTPConfig configures the SSE transport listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig configures the sqlite-backed upstream stores.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DiscoveryConfig configures LAN advertisement of the stream endpoint.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// LogConfig configures event logging.
type LogConfig struct {
	// File is an optional path for the CBOR event log.
	File string `yaml:"file"`

	// Debug enables debug-level console output.
	Debug bool `yaml:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Stream: StreamConfig{
			CycleInterval:      Duration(stream.DefaultCycleInterval),
			SendTimeout:        Duration(stream.DefaultSendTimeout),
			RefreshTimeout:     Duration(stream.DefaultRefreshTimeout),
			MaxConcurrentSends: stream.DefaultMaxConcurrentSends,
		},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Database:  DatabaseConfig{Path: "pulsefeed.db"},
		Discovery: DiscoveryConfig{Enabled: false, Instance: "pulsefeed"},
	}
}

// Load reads a YAML config file, applying defaults for absent fields.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Stream.CycleInterval <= 0 {
		return cfg, fmt.Errorf("cycle_interval must be positive")
	}
	if cfg.HTTP.Addr == "" {
		return cfg, fmt.Errorf("http addr must not be empty")
	}
	return cfg, nil
}

// EngineConfig converts the stream section to the engine's config type.
func (c Config) EngineConfig() stream.Config {
	return stream.Config{
		CycleInterval:      c.Stream.CycleInterval.Std(),
		SendTimeout:        c.Stream.SendTimeout.Std(),
		RefreshTimeout:     c.Stream.RefreshTimeout.Std(),
		MaxConcurrentSends: c.Stream.MaxConcurrentSends,
	}
}
