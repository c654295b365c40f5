// Package config loads remedy configuration from .remedy/config.yaml.
// A missing config file is not an error - every field has a working default
// so the tool can run against a freshly cloned plugin tree.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all remedy configuration.
type Config struct {
	// Results is where the integration harness drops its artifacts.
	Results ResultsConfig `yaml:"results"`

	// Targets are the files the transformation catalog operates on,
	// relative to the project root.
	Targets TargetsConfig `yaml:"targets"`

	// Ledger controls the attempt ledger.
	Ledger LedgerConfig `yaml:"ledger"`

	// Rebuild controls the configure/build subprocess steps.
	Rebuild RebuildConfig `yaml:"rebuild"`

	// Logging controls the categorized file logger.
	Logging LoggingConfig `yaml:"logging"`
}

// ResultsConfig configures failure-report discovery.
type ResultsConfig struct {
	// Dir is the directory scanned for results_*.json artifacts.
	Dir string `yaml:"dir"`
}

// TargetsConfig names the files the catalog may rewrite.
type TargetsConfig struct {
	FilterSource string `yaml:"filter_source"` // runtime filter implementation
	BuildFile    string `yaml:"build_file"`    // CMake build configuration
	SupportFile  string `yaml:"support_file"`  // loader/shim source
}

// LedgerConfig configures the attempt ledger.
type LedgerConfig struct {
	Path        string `yaml:"path"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// RebuildConfig configures the rebuild pipeline.
// Empty ConfigureCmd/BuildCmd fall back to cmake -G Ninja / ninja.
type RebuildConfig struct {
	BuildDir            string   `yaml:"build_dir"`
	ConfigureCmd        []string `yaml:"configure_cmd"`
	BuildCmd            []string `yaml:"build_cmd"`
	ConfigureTimeoutSec int      `yaml:"configure_timeout_sec"`
	BuildTimeoutSec     int      `yaml:"build_timeout_sec"`
}

// LoggingConfig mirrors the logging package's view of the config file.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Results: ResultsConfig{
			Dir: filepath.Join("tests", "integration", "results"),
		},
		Targets: TargetsConfig{
			FilterSource: filepath.Join("src", "stabilizer_opencv.cpp"),
			BuildFile:    "CMakeLists.txt",
			SupportFile:  filepath.Join("src", "plugin-support.c"),
		},
		Ledger: LedgerConfig{
			Path:        filepath.Join(".remedy", "ledger.json"),
			MaxAttempts: 3,
		},
		Rebuild: RebuildConfig{
			BuildDir:            "build",
			ConfigureTimeoutSec: 60,
			BuildTimeoutSec:     300,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Path returns the config file location for a project root.
func Path(root string) string {
	return filepath.Join(root, ".remedy", "config.yaml")
}

// Load reads the config for the given project root, layered over defaults.
// A missing file returns defaults; a malformed file is an error so the
// operator notices a typo instead of silently running on defaults.
func Load(root string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(root))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Ledger.MaxAttempts <= 0 {
		cfg.Ledger.MaxAttempts = Default().Ledger.MaxAttempts
	}
	if cfg.Rebuild.ConfigureTimeoutSec <= 0 {
		cfg.Rebuild.ConfigureTimeoutSec = Default().Rebuild.ConfigureTimeoutSec
	}
	if cfg.Rebuild.BuildTimeoutSec <= 0 {
		cfg.Rebuild.BuildTimeoutSec = Default().Rebuild.BuildTimeoutSec
	}

	return cfg, nil
}
