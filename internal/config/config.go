// Package config loads the peer's TOML configuration, grounded on
// dsmmcken-dh-cli's internal/config/config.go (os.ReadFile +
// toml.Unmarshal, zero-value default on missing file).
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is one peer's full configuration (SPEC_FULL.md §10.3).
type Config struct {
	Peer      Peer      `toml:"peer"`
	Arena     Arena     `toml:"arena"`
	RateLimit RateLimit `toml:"rate_limit"`
	Log       Log       `toml:"log"`
}

// Peer names this process and the remote it talks to.
type Peer struct {
	Name       string `toml:"name"`
	ListenPath string `toml:"listen_path,omitempty"`
	DialPath   string `toml:"dial_path,omitempty"`
}

// Arena sizes the shared-memory mappings (spec.md §4.D create_mapping).
type Arena struct {
	BufferSize     uint32 `toml:"buffer_size"`
	MaxMessageSize uint32 `toml:"max_message_size"`
}

// RateLimit configures the outbound token bucket (internal/rpc).
type RateLimit struct {
	MessagesPerSecond int `toml:"messages_per_second"`
	BurstSize         int `toml:"burst_size"`
}

// Log configures internal/obs.
type Log struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration a peer starts from
// before any config.toml is applied.
func Default() Config {
	return Config{
		Arena: Arena{
			BufferSize:     1 << 20,
			MaxMessageSize: 1 << 16,
		},
		RateLimit: RateLimit{
			MessagesPerSecond: 10000,
			BurstSize:         1000,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path and merges it onto Default(); a missing file yields
// the defaults unchanged (dsmmcken-dh-cli's Load semantics).
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
