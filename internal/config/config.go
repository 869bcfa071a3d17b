package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755
)

var (
	// ConfigDir is the global configuration directory (~/.loadhook)
	ConfigDir string

	// ScriptsDir is the default directory searched for hook scripts
	ScriptsDir string

	// DatabasePath is the SQLite run ledger
	DatabasePath string
)

// Initialize sets up the configuration directories.
// It creates ~/.loadhook/ if it doesn't exist
func Initialize() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	return InitializeAt(filepath.Join(homeDir, ".loadhook"))
}

// InitializeAt is Initialize rooted at dir
func InitializeAt(dir string) error {
	ConfigDir = dir
	ScriptsDir = filepath.Join(ConfigDir, "scripts")
	DatabasePath = filepath.Join(ConfigDir, "loadhook.db")

	for _, d := range []string{ConfigDir, ScriptsDir} {
		if err := os.MkdirAll(d, DirPermissions); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return nil
}

// ResolveScript finds a script by path, falling back to ScriptsDir for bare names
func ResolveScript(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	if ScriptsDir != "" && !filepath.IsAbs(name) {
		candidate := filepath.Join(ScriptsDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("script %s not found", name)
}
