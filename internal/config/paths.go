package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvCoordHome   = "COORD_HOME"
	EnvCoordConfig = "COORD_CONFIG"
)

type RuntimePaths struct {
	HomeDir    string
	ConfigPath string
	DBPath     string
	LogPath    string
}

// ResolveRuntimePaths determines where the config file, database, and
// log file live, honoring COORD_CONFIG and COORD_HOME before falling
// back to ~/.coordinatord.
func ResolveRuntimePaths() RuntimePaths {
	if configPath := expandHome(strings.TrimSpace(os.Getenv(EnvCoordConfig))); configPath != "" {
		return buildRuntimePaths(filepath.Dir(configPath), configPath)
	}

	homeDir := expandHome(strings.TrimSpace(os.Getenv(EnvCoordHome)))
	if homeDir == "" {
		homeDir = defaultCoordHome()
	}

	return buildRuntimePaths(homeDir, filepath.Join(homeDir, "config.json"))
}

func defaultCoordHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".coordinatord"
	}
	return filepath.Join(home, ".coordinatord")
}

func buildRuntimePaths(homeDir, configPath string) RuntimePaths {
	return RuntimePaths{
		HomeDir:    homeDir,
		ConfigPath: configPath,
		DBPath:     filepath.Join(homeDir, "coordination.db"),
		LogPath:    filepath.Join(homeDir, "coordinatord.log"),
	}
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
