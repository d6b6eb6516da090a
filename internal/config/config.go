package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// FilePermissions is the default permission mode for regular files
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories
	DirPermissions = 0755
)

var (
	// ConfigDir is the global configuration directory (~/.apicove)
	ConfigDir string

	// DatabasePath is the SQLite database file for history
	DatabasePath string

	// EnvironmentsFile holds environments and global variables
	EnvironmentsFile string

	// AgentPermissionFile remembers that local-network access was granted
	AgentPermissionFile string
)

// Initialize sets up the configuration directory and global paths.
// It creates ~/.apicove/ if it doesn't exist.
func Initialize() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	ConfigDir = filepath.Join(homeDir, ".apicove")
	DatabasePath = filepath.Join(ConfigDir, "apicove.db")
	EnvironmentsFile = filepath.Join(ConfigDir, ".environments.json")
	AgentPermissionFile = filepath.Join(ConfigDir, ".agent.json")

	if err := os.MkdirAll(ConfigDir, DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", ConfigDir, err)
	}
	return nil
}

// APIBase returns the remote execution proxy base URL, overridable through
// the APICOVE_API_BASE environment variable.
func APIBase() string {
	if base := os.Getenv("APICOVE_API_BASE"); base != "" {
		return base
	}
	return "https://api.apicove.dev"
}
