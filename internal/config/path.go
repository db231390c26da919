package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir picks the data directory for the host platform, checked
// in order: $XDG_DATA_HOME, the system /var/lib tree, the macOS or Windows
// application-support directory, then ~/.labeld. Without a resolvable home
// directory it settles for ./data relative to the process.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "labeld")
	}
	if isDir("/var/lib") {
		return "/var/lib/labeld"
	}
	if isDir(filepath.Join(home, "Library")) {
		return filepath.Join(home, "Library", "Application Support", "Labeld")
	}
	if isDir(filepath.Join(home, "AppData")) {
		return filepath.Join(home, "AppData", "Local", "Labeld")
	}
	return filepath.Join(home, ".labeld")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
