package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all scanner configuration.
type Config struct {
	Data struct {
		// DuckDBPath points at a database with per-symbol daily tables.
		DuckDBPath string `yaml:"duckdb_path"`
		// BarsDir holds <symbol>.bin daily bar files; used when DuckDBPath
		// is empty.
		BarsDir      string `yaml:"bars_dir"`
		LookbackDays int    `yaml:"lookback_days"`
	} `yaml:"data"`
	Symbols  []string `yaml:"symbols"`
	Analysis struct {
		MinWindow     int `yaml:"min_window"`
		MaxWindow     int `yaml:"max_window"`
		Step          int `yaml:"step"`
		MaxIterations int `yaml:"max_iterations"`
		ForecastDays  int `yaml:"forecast_days"`
	} `yaml:"analysis"`
	Schedule struct {
		ScanCron string `yaml:"scan_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Charts struct {
		OutputDir string `yaml:"output_dir"`
	} `yaml:"charts"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("QUANT_DUCKDB_PATH"); v != "" {
		cfg.Data.DuckDBPath = v
	}
	if v := os.Getenv("QUANT_BARS_DIR"); v != "" {
		cfg.Data.BarsDir = v
	}
	if v := os.Getenv("QUANT_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}

	// Defaults
	if cfg.Data.LookbackDays <= 0 {
		cfg.Data.LookbackDays = 1095 // ~3 years, enough for the largest window
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "quant.db"
	}

	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("no symbols configured")
	}
	if cfg.Data.DuckDBPath == "" && cfg.Data.BarsDir == "" {
		return nil, fmt.Errorf("either data.duckdb_path or data.bars_dir is required")
	}
	return cfg, nil
}
