package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Missing(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Delimiter != "." {
		t.Errorf("Delimiter=%q, want default \".\"", cfg.Delimiter)
	}
	if !cfg.FlattenTree() || !cfg.WatchEnabled() {
		t.Error("defaults should enable flattening and watching")
	}
}

func TestLoadFrom_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Delimiter = "/"
	cfg.UI.MaxBins = 64
	cfg.Watch.PollInterval = 5 * time.Second
	cfg.AddRecent("/tmp/a.safetensors")
	cfg.AddRecent("/tmp/b.safetensors")

	require.NoError(t, SaveTo(cfg, path))
	got, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "/", got.Delimiter)
	assert.Equal(t, 64, got.UI.MaxBins)
	assert.Equal(t, 5*time.Second, got.Watch.PollInterval)
	assert.Equal(t, []string{"/tmp/b.safetensors", "/tmp/a.safetensors"}, got.Recent)
}

func TestAddRecent_DedupAndCap(t *testing.T) {
	var cfg Config
	for i := 0; i < 15; i++ {
		cfg.AddRecent(filepath.Join("/ckpt", string(rune('a'+i))))
	}
	cfg.AddRecent("/ckpt/a")

	if len(cfg.Recent) != maxRecent {
		t.Errorf("Recent holds %d entries, want %d", len(cfg.Recent), maxRecent)
	}
	if cfg.Recent[0] != "/ckpt/a" {
		t.Errorf("Recent[0]=%q, re-adding should move to front", cfg.Recent[0])
	}
	seen := make(map[string]bool)
	for _, p := range cfg.Recent {
		if seen[p] {
			t.Errorf("duplicate recent entry %q", p)
		}
		seen[p] = true
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CPTUI_DELIMITER", "/")
	t.Setenv("CPTUI_MAX_BINS", "17")
	t.Setenv("CPTUI_NO_WATCH", "1")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/", cfg.Delimiter)
	assert.Equal(t, 17, cfg.UI.MaxBins)
	assert.False(t, cfg.WatchEnabled(), "CPTUI_NO_WATCH did not disable watching")
}

func TestConfigDir_XDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if got := ConfigDir(); got != filepath.Join(dir, "checkpointui") {
		t.Errorf("ConfigDir=%q", got)
	}
	if got := ConfigPath(); got != filepath.Join(dir, "checkpointui", "config.yaml") {
		t.Errorf("ConfigPath=%q", got)
	}
}
