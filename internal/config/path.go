// Package config resolves where books keeps its data and reads its settings
// through viper.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appDir = "books"

// DataDir returns the directory books stores its database in: $XDG_DATA_HOME/books
// when XDG_DATA_HOME is an absolute path, ~/.local/share/books otherwise.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); filepath.IsAbs(xdg) {
		return filepath.Join(xdg, appDir)
	}
	return filepath.Join("~", ".local", "share", appDir)
}

// DefaultDatabasePath is used when database.path is not configured.
func DefaultDatabasePath() string {
	return filepath.Join(DataDir(), appDir+".db")
}

// ExpandPath resolves a leading ~ to the home directory and then expands
// $VAR references. Paths it cannot resolve are returned unchanged.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	return os.ExpandEnv(path)
}
