package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/surge-downloader/localcopy/internal/engine/state"
	"github.com/surge-downloader/localcopy/internal/engine/types"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General GeneralSettings `json:"general"`
	State   StateSettings   `json:"state"`
	Network NetworkSettings `json:"network"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	StorageDir        string `json:"storage_dir"`
	LogRetentionCount int    `json:"log_retention_count"`
}

// StateSettings selects the registry backend.
type StateSettings struct {
	Backend string `json:"backend"`
}

// NetworkSettings contains network connection parameters.
type NetworkSettings struct {
	UserAgent             string        `json:"user_agent"`
	ProxyURL              string        `json:"proxy_url"`
	WorkerBufferSize      int           `json:"worker_buffer_size"`
	ProgressInterval      time.Duration `json:"progress_interval"`
	ProgressMinBytes      int64         `json:"progress_min_bytes"`
	MaxConcurrentResolves int           `json:"max_concurrent_resolves"`
}

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		General: GeneralSettings{
			StorageDir:        GetDefaultStorageDir(),
			LogRetentionCount: 5,
		},
		State: StateSettings{
			Backend: state.KindSQLite,
		},
		Network: NetworkSettings{
			UserAgent:             "", // Empty means use default UA
			WorkerBufferSize:      types.WorkerBuffer,
			ProgressInterval:      types.ProgressInterval,
			ProgressMinBytes:      types.ProgressMinBytes,
			MaxConcurrentResolves: 4,
		},
	}
}

// Validate rejects settings the application cannot run with.
func (s *Settings) Validate() error {
	switch s.State.Backend {
	case state.KindSQLite, state.KindBadger, state.KindMemory:
	default:
		return fmt.Errorf("unknown state backend %q", s.State.Backend)
	}
	if s.General.StorageDir == "" {
		return fmt.Errorf("storage_dir must not be empty")
	}
	if s.Network.MaxConcurrentResolves < 1 {
		return fmt.Errorf("max_concurrent_resolves must be at least 1, got %d", s.Network.MaxConcurrentResolves)
	}
	return nil
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetAppDir(), "settings.json")
}

// LoadSettings loads settings from disk. Returns defaults if file doesn't exist.
func LoadSettings() (*Settings, error) {
	path := GetSettingsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}

	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// ToRuntimeConfig creates the transport RuntimeConfig from user Settings
func (s *Settings) ToRuntimeConfig() *types.RuntimeConfig {
	return &types.RuntimeConfig{
		UserAgent:        s.Network.UserAgent,
		ProxyURL:         s.Network.ProxyURL,
		WorkerBufferSize: s.Network.WorkerBufferSize,
		ProgressInterval: s.Network.ProgressInterval,
		ProgressMinBytes: s.Network.ProgressMinBytes,
		TempDir:          GetTempDir(),
	}
}
