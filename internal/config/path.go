package config

import (
	"os"
	"path/filepath"
	goruntime "runtime"
)

const dataDirName = "walkin"

// DefaultDataDir picks the per-user data directory for the Pebble files.
// XDG_DATA_HOME wins everywhere; without a home directory it falls back to
// ./walkin-data.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./walkin-data"
	}
	return dataDirFor(goruntime.GOOS, home, os.Getenv("LOCALAPPDATA"))
}

func dataDirFor(goos, home, localAppData string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Walkin")
	case "windows":
		if localAppData != "" {
			return filepath.Join(localAppData, "Walkin")
		}
		return filepath.Join(home, "AppData", "Local", "Walkin")
	default:
		return filepath.Join(home, ".local", "share", dataDirName)
	}
}
