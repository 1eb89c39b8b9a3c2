package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Backend identifies how notes are sounded
type Backend string

const (
	BackendMIDI  Backend = "midi"
	BackendSynth Backend = "synth"
)

// OutputConfig defines the playback output
type OutputConfig struct {
	Backend  Backend `json:"backend,omitempty"`
	PortName string  `json:"portName,omitempty"` // MIDI only
	Channel  uint8   `json:"channel,omitempty"`  // MIDI only, 1-16
}

// PlaybackConfig stores scheduling preferences
type PlaybackConfig struct {
	Tempo           float64 `json:"tempo,omitempty"` // BPM, overrides the score when set
	TicksPerQuarter int     `json:"ticksPerQuarter,omitempty"`
	Velocity        uint8   `json:"velocity,omitempty"`
	EmphasizeBass   bool    `json:"emphasizeBass,omitempty"`
}

// ServeConfig stores the status server address
type ServeConfig struct {
	Addr string `json:"addr,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Output   OutputConfig   `json:"output,omitempty"`
	Playback PlaybackConfig `json:"playback,omitempty"`
	Serve    ServeConfig    `json:"serve,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Backend: BackendSynth,
			Channel: 1,
		},
		Playback: PlaybackConfig{
			Velocity: 96,
		},
		Serve: ServeConfig{
			Addr: "localhost:8077",
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-chorale"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
