// Package config handles loading and saving checkpointui configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/checkpointui/config.yaml
//   - State:   ~/.local/state/checkpointui/ (recent checkpoints)
//
// Environment variables prefixed CPTUI_ override individual settings for
// one-off runs without editing the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// UIConfig holds UI preference settings.
type UIConfig struct {
	// FlattenTree collapses single-child module chains into one row.
	FlattenTree *bool `yaml:"flatten_tree,omitempty"`
	// MaxBins caps histogram resolution; 0 means use the chart width.
	MaxBins int `yaml:"max_bins,omitempty"`
}

// WatchConfig controls checkpoint file watching.
type WatchConfig struct {
	Enabled      *bool         `yaml:"enabled,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	Debounce     time.Duration `yaml:"debounce,omitempty"`
}

// Config is the top-level configuration for checkpointui.
type Config struct {
	// Delimiter splits tensor names into the module tree.
	Delimiter string      `yaml:"delimiter,omitempty"`
	UI        UIConfig    `yaml:"ui,omitempty"`
	Watch     WatchConfig `yaml:"watch,omitempty"`
	// Recent holds recently opened checkpoint paths, newest first.
	Recent []string `yaml:"recent,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	flatten := true
	watch := true
	return Config{
		Delimiter: ".",
		UI: UIConfig{
			FlattenTree: &flatten,
		},
		Watch: WatchConfig{
			Enabled:      &watch,
			PollInterval: 2 * time.Second,
			Debounce:     250 * time.Millisecond,
		},
	}
}

// ConfigDir returns the XDG config directory for checkpointui.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "checkpointui")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "checkpointui")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory, then applies
// CPTUI_* environment overrides. Returns DefaultConfig if the file doesn't
// exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		cfg := DefaultConfig()
		cfg.applyEnv()
		return cfg, nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	for i := range cfg.Recent {
		cfg.Recent[i] = expandHome(cfg.Recent[i])
	}
	cfg.applyEnv()
	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// maxRecent bounds the recent-checkpoints list.
const maxRecent = 10

// AddRecent records path as the most recently opened checkpoint.
func (c *Config) AddRecent(path string) {
	out := []string{path}
	for _, p := range c.Recent {
		if p != path {
			out = append(out, p)
		}
	}
	if len(out) > maxRecent {
		out = out[:maxRecent]
	}
	c.Recent = out
}

// FlattenTree reports whether single-child module chains collapse.
func (c Config) FlattenTree() bool {
	return c.UI.FlattenTree == nil || *c.UI.FlattenTree
}

// WatchEnabled reports whether the checkpoint file is watched for changes.
func (c Config) WatchEnabled() bool {
	return c.Watch.Enabled == nil || *c.Watch.Enabled
}

// applyEnv layers CPTUI_* environment overrides onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("CPTUI_DELIMITER"); v != "" {
		c.Delimiter = v
	}
	if v := os.Getenv("CPTUI_MAX_BINS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.UI.MaxBins = n
		}
	}
	if v := os.Getenv("CPTUI_NO_WATCH"); v != "" {
		off := false
		c.Watch.Enabled = &off
	}
	if v := os.Getenv("CPTUI_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Watch.PollInterval = d
		}
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
