package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - PSYNC_CONFIG_PATH: config file location (default: ~/.config/psync.toml)
//   - PSYNC_HOME: base directory for psync data (default: ~/.local/share/psync)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking PSYNC_CONFIG_PATH env var first,
// then falling back to the default ~/.config/psync.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("PSYNC_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "psync.toml"), nil
}

// getBaseDir returns the base directory for psync data, checking PSYNC_HOME env var first,
// then falling back to the XDG default ~/.local/share/psync.
func getBaseDir() (string, error) {
	if path := os.Getenv("PSYNC_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "psync"), nil
}
