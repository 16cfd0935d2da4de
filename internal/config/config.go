// Package config loads and persists coordinatord's configuration: a
// JSON file on disk, overlaid by COORD_* environment variables.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type ServerConfig struct {
	Host string `json:"host" env:"COORD_SERVER_HOST"`
	Port int    `json:"port" env:"COORD_SERVER_PORT"`
}

type StoreConfig struct {
	Path string `json:"path" env:"COORD_DB_PATH"`
}

type RetryConfig struct {
	BaseSeconds int     `json:"base_seconds" env:"COORD_RETRY_BASE_SECONDS"`
	Multiplier  float64 `json:"multiplier" env:"COORD_RETRY_MULTIPLIER"`
	MaxRetries  int     `json:"max_retries" env:"COORD_RETRY_MAX_RETRIES"`
}

type CleanupConfig struct {
	IntervalHours int `json:"interval_hours" env:"COORD_CLEANUP_INTERVAL_HOURS"`
	RetentionDays int `json:"retention_days" env:"COORD_CLEANUP_RETENTION_DAYS"`
}

type LogConfig struct {
	Level    string `json:"level" env:"COORD_LOG_LEVEL"`
	FilePath string `json:"file_path" env:"COORD_LOG_FILE"`
}

type Config struct {
	Server  ServerConfig  `json:"server"`
	Store   StoreConfig   `json:"store"`
	Retry   RetryConfig   `json:"retry"`
	Cleanup CleanupConfig `json:"cleanup"`
	Log     LogConfig     `json:"log"`
}

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present: loopback-only on the default
// port, with retry defaults matching retry.NewRetryPolicy.
func DefaultConfig() *Config {
	paths := ResolveRuntimePaths()
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7432,
		},
		Store: StoreConfig{
			Path: paths.DBPath,
		},
		Retry: RetryConfig{
			BaseSeconds: 30,
			Multiplier:  2,
			MaxRetries:  2,
		},
		Cleanup: CleanupConfig{
			IntervalHours: 24,
			RetentionDays: 7,
		},
		Log: LogConfig{
			Level:    "info",
			FilePath: paths.LogPath,
		},
	}
}

// LoadConfig reads the JSON config file at path (if present) over the
// defaults, then overlays COORD_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}
