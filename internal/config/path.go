// Package config provides configuration utilities for the application.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands ~ and environment variables in a file path.
// It handles both ~ for home directory and $VAR style environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}

// dataDir is the per-user data directory for cache and session files.
func dataDir() string {
	return ExpandPath("~/.local/share/transforma")
}

// DefaultCachePath returns the default duplicate cache location.
func DefaultCachePath() string {
	return filepath.Join(dataDir(), "submitted-invoices.cache")
}

// DefaultSessionPath returns the default session credential location.
func DefaultSessionPath() string {
	return filepath.Join(dataDir(), "session.json")
}

// DefaultSyncDBPath returns the default location of the sync database
// maintained by the Float desktop app.
func DefaultSyncDBPath() string {
	return filepath.Join(dataDir(), "sync.db")
}
