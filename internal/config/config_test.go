package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, Version, cfg.Version)
	assert.Equal(t, "PowerPoint.Application", cfg.Application.ProgID)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Worker, cfg.Worker)
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := DefaultConfig()
	cfg.Application.ProgID = "Impress.Application"
	cfg.Worker.PumpIntervalMs = 25
	cfg.Journal.Enabled = true
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Impress.Application", loaded.Application.ProgID)
	assert.Equal(t, 25, loaded.Worker.PumpIntervalMs)
	assert.True(t, loaded.Journal.Enabled)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "version = 1\n\n[worker]\npump_interval_ms = 10\nrequest_queue_size = 32\nannounce_queue_size = 64\nstaleness_timeout_sec = 120\nshutdown_timeout_sec = 5\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0640))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Worker.PumpIntervalMs)
	// Unset sections keep defaults.
	assert.Equal(t, "PowerPoint.Application", cfg.Application.ProgID)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty prog id", func(c *Config) { c.Application.ProgID = "" }, "application.prog_id"},
		{"pump too fast", func(c *Config) { c.Worker.PumpIntervalMs = 0 }, "worker.pump_interval_ms"},
		{"inverted thresholds", func(c *Config) {
			c.Mentions.StrongThreshold = 0.5
			c.Mentions.WeakThreshold = 0.7
		}, "mentions.strong_threshold"},
		{"journal without path", func(c *Config) {
			c.Journal.Enabled = true
			c.Journal.Path = ""
		}, "journal.path"},
		{"bad listen addr", func(c *Config) { c.IPC.ListenAddr = "localhost" }, "ipc.listen_addr"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}
