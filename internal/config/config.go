// Package config handles configuration loading, validation, and defaults
// for slidebridge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version"`

	// Application configuration for the automation target.
	Application ApplicationConfig `toml:"application"`

	// Worker configuration for the automation worker loop.
	Worker WorkerConfig `toml:"worker"`

	// Resolution configuration for the saved-file status reader.
	Resolution ResolutionConfig `toml:"resolution"`

	// Mentions configuration for @mention matching.
	Mentions MentionsConfig `toml:"mentions"`

	// Journal configuration for the diagnostics journal.
	Journal JournalConfig `toml:"journal"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc"`
}

// ApplicationConfig identifies and tunes attachment to the target editor.
type ApplicationConfig struct {
	// ProgID is the automation program identifier of the target editor.
	ProgID string `toml:"prog_id"`

	// AttachRetryMs is the delay between attachment attempts while detached.
	AttachRetryMs int `toml:"attach_retry_ms"`

	// EnforceNormalView switches the editor to Normal view on attach.
	// The comment pane only exists in Normal view.
	EnforceNormalView bool `toml:"enforce_normal_view"`
}

// WorkerConfig tunes the automation worker loop.
type WorkerConfig struct {
	// PumpIntervalMs is the bounded wait of each message-pump cycle.
	PumpIntervalMs int `toml:"pump_interval_ms"`

	// RequestQueueSize is the depth of the inbound request channel.
	RequestQueueSize int `toml:"request_queue_size"`

	// AnnounceQueueSize is the depth of the outbound announcement queue.
	AnnounceQueueSize int `toml:"announce_queue_size"`

	// StalenessTimeoutSec is how long without any event delivery before the
	// worker probes the connection and, on failure, re-attaches.
	StalenessTimeoutSec int `toml:"staleness_timeout_sec"`

	// ShutdownTimeoutSec bounds the shutdown join.
	ShutdownTimeoutSec int `toml:"shutdown_timeout_sec"`
}

// ResolutionConfig tunes the resolution-status resolver.
type ResolutionConfig struct {
	// Enabled turns the saved-file reader on.
	Enabled bool `toml:"enabled"`

	// WatchSaves re-reads the deck after each save (Tier 2).
	WatchSaves bool `toml:"watch_saves"`

	// DebounceMs is how long a saved file must be stable before re-reading.
	DebounceMs int `toml:"debounce_ms"`

	// RetryAttempts bounds re-reads while the file is transiently locked.
	RetryAttempts int `toml:"retry_attempts"`

	// RetryBackoffMs is the initial backoff between retry attempts.
	RetryBackoffMs int `toml:"retry_backoff_ms"`
}

// MentionsConfig tunes @mention matching.
type MentionsConfig struct {
	// RosterPath is the path to the identity roster JSON file.
	RosterPath string `toml:"roster_path"`

	// StrongThreshold is the similarity ratio for a strong fuzzy match.
	StrongThreshold float64 `toml:"strong_threshold"`

	// WeakThreshold is the similarity ratio for a weak fuzzy match.
	WeakThreshold float64 `toml:"weak_threshold"`
}

// JournalConfig tunes the diagnostics journal.
type JournalConfig struct {
	// Enabled turns event journaling on.
	Enabled bool `toml:"enabled"`

	// Path is the sqlite database path.
	Path string `toml:"path"`

	// MaxEvents caps retained journal rows (oldest pruned first).
	MaxEvents int `toml:"max_events"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Output     string `toml:"output"`
	FilePath   string `toml:"file_path"`
	MaxSizeMB  int64  `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// IPCConfig holds control-socket settings.
type IPCConfig struct {
	// SocketPath is the unix socket path (ignored on Windows).
	SocketPath string `toml:"socket_path"`

	// ListenAddr is the localhost TCP address used on Windows.
	ListenAddr string `toml:"listen_addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dataDir := PlatformDataDir()
	return &Config{
		Version: Version,
		Application: ApplicationConfig{
			ProgID:            "PowerPoint.Application",
			AttachRetryMs:     2000,
			EnforceNormalView: true,
		},
		Worker: WorkerConfig{
			PumpIntervalMs:      50,
			RequestQueueSize:    32,
			AnnounceQueueSize:   64,
			StalenessTimeoutSec: 120,
			ShutdownTimeoutSec:  5,
		},
		Resolution: ResolutionConfig{
			Enabled:        true,
			WatchSaves:     true,
			DebounceMs:     500,
			RetryAttempts:  5,
			RetryBackoffMs: 200,
		},
		Mentions: MentionsConfig{
			RosterPath:      filepath.Join(dataDir, "roster.json"),
			StrongThreshold: 0.85,
			WeakThreshold:   0.70,
		},
		Journal: JournalConfig{
			Enabled:   false,
			Path:      filepath.Join(dataDir, "journal.db"),
			MaxEvents: 10000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		IPC: IPCConfig{
			SocketPath: filepath.Join(dataDir, "slidebridge.sock"),
			ListenAddr: "127.0.0.1:48652",
		},
	}
}

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/slidebridge/
//   - Linux:   ~/.local/share/slidebridge/
//   - Windows: %APPDATA%\slidebridge\
//
// Falls back to ~/.slidebridge if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return fallbackDataDir()
		}
		return filepath.Join(home, "Library", "Application Support", "slidebridge")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return fallbackDataDir()
		}
		return filepath.Join(appData, "slidebridge")
	default:
		dataHome := os.Getenv("XDG_DATA_HOME")
		if dataHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fallbackDataDir()
			}
			dataHome = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(dataHome, "slidebridge")
	}
}

func fallbackDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".slidebridge"
	}
	return filepath.Join(home, ".slidebridge")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(PlatformDataDir(), "config.toml")
}

// Load reads and parses the configuration file at path, applies defaults
// for unset sections, and validates the result. A missing file yields the
// default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path as TOML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
