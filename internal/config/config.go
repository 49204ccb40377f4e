// Package config loads the engine's TOML configuration file, the same
// tagged-struct idiom the teacher plugin uses for its own settings
// (plugins/inputs/statsd/statsd.go's `toml:"..."` fields).
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level statsrelay configuration.
type Config struct {
	// UDPAddress and TCPAddress are the statsd ingestion listeners.
	// Either may be left empty to disable that protocol.
	UDPAddress string `toml:"udp_address"`
	TCPAddress string `toml:"tcp_address"`

	// HTTPAddress serves /metrics and /debug/buckets.
	HTTPAddress string `toml:"http_address"`

	// ForwardAddress, when set, receives the verbatim line for every
	// observation the engine returns NotSampling for (pass-through
	// forwarding, SPEC_FULL.md "Supplemented Features").
	ForwardAddress string `toml:"forward_address"`

	// Threshold, WindowSeconds, and ReservoirSize are spec.md §6's three
	// engine knobs.
	Threshold     int64 `toml:"threshold"`
	WindowSeconds int64 `toml:"window_seconds"`
	ReservoirSize int   `toml:"reservoir_size"`

	// Shards is the number of independently-locked engine instances
	// keys are hashed across (internal/shard).
	Shards int `toml:"shards"`

	// MaxTCPConnections bounds concurrent TCP ingestion connections.
	MaxTCPConnections int `toml:"max_tcp_connections"`

	// AllowedPendingMessages is passed to the listener as PendingQueue.
	// The listener has no ingest queue: it handles each packet or line
	// as it is read, and this value never causes a packet to be dropped.
	AllowedPendingMessages int `toml:"allowed_pending_messages"`

	LogLevel string `toml:"log_level"`
}

// Default returns the configuration the teacher's own plugin defaults
// to where a direct analogue exists (MaxTCPConnections: 250,
// AllowedPendingMessages: 10000), adapted to this engine's own knobs.
func Default() Config {
	return Config{
		UDPAddress:             ":8125",
		HTTPAddress:            ":8126",
		Threshold:              100,
		WindowSeconds:          10,
		ReservoirSize:          100,
		Shards:                 1,
		MaxTCPConnections:      250,
		AllowedPendingMessages: 10000,
		LogLevel:               "info",
	}
}

// Load reads and validates a TOML config file at path, starting from
// Default() so unset fields keep sane values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the invariants spec.md §6 requires of the engine
// knobs.
func (c Config) Validate() error {
	if c.Threshold < 1 {
		return fmt.Errorf("config: threshold must be >= 1, got %d", c.Threshold)
	}
	if c.ReservoirSize < 1 {
		return fmt.Errorf("config: reservoir_size must be >= 1, got %d", c.ReservoirSize)
	}
	if c.WindowSeconds < 1 {
		return fmt.Errorf("config: window_seconds must be >= 1, got %d", c.WindowSeconds)
	}
	if c.Shards < 1 {
		return fmt.Errorf("config: shards must be >= 1, got %d", c.Shards)
	}
	return nil
}

// Window returns WindowSeconds as a time.Duration.
func (c Config) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}
