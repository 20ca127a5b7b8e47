package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "localcopy"

func GetAppDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		return filepath.Join(appData, appName)
	case "darwin": // MacOS
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", appName)
	default: // Linux
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, _ := os.UserHomeDir()
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, appName)
	}
}

// Returns directory for the registry database and the instance lock.
// Linux follows XDG_STATE_HOME; elsewhere it is the app dir.
func GetStateDir() string {
	if runtime.GOOS != "linux" {
		return GetAppDir()
	}
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, _ := os.UserHomeDir()
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, appName)
}

// Returns directory for logs
func GetLogsDir() string {
	return filepath.Join(GetStateDir(), "logs")
}

// Returns directory for partial transfers
func GetTempDir() string {
	return filepath.Join(GetStateDir(), "partial")
}

// Returns the default permanent storage root
func GetDefaultStorageDir() string {
	return filepath.Join(GetAppDir(), "files")
}

// EnsureDirs creates all required directories
func EnsureDirs() error {
	dirs := []string{GetAppDir(), GetStateDir(), GetLogsDir(), GetTempDir()}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
