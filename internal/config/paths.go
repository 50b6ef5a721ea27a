// Package config provides configuration management for stasis.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds platform-specific directory paths for stasis.
type Paths struct {
	// ConfigDir is the directory config.yaml is looked up in.
	// macOS: ~/Library/Application Support/Stasis
	// Linux: ~/.config/stasis (or XDG_CONFIG_HOME)
	ConfigDir string

	// ConfigFile is the path to the main config file.
	ConfigFile string
}

// GetPaths returns platform-aware paths for stasis.
func GetPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	p := &Paths{}

	switch runtime.GOOS {
	case "darwin":
		p.ConfigDir = filepath.Join(home, "Library", "Application Support", "Stasis")
	default: // Linux and others
		// Respect XDG_CONFIG_HOME if set
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			p.ConfigDir = filepath.Join(xdgConfig, "stasis")
		} else {
			p.ConfigDir = filepath.Join(home, ".config", "stasis")
		}
	}

	p.ConfigFile = filepath.Join(p.ConfigDir, "config.yaml")

	return p, nil
}
