// Package config holds the domainsift configuration file: artifact
// store location, outlier multiplier, shuffle seed and collaborator
// paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full tool configuration. Zero values fall back to
// defaults when loaded.
type Config struct {
	// BordersDir holds the artifact database (scaler, outlier
	// bounds, categorical model).
	BordersDir string `yaml:"borders_dir"`

	// OutlierMultiplier is k in the mean ± k·stddev bounds.
	OutlierMultiplier float64 `yaml:"outlier_multiplier"`

	// ShuffleSeed makes training-row shuffling reproducible.
	// 0 selects a time-derived seed on every run.
	ShuffleSeed int64 `yaml:"shuffle_seed"`

	// FamilyTable is the YAML file mapping normalized DGA labels to
	// family ids, required by the multiclass policy.
	FamilyTable string `yaml:"family_table"`

	// OutputDir receives the emitted feature-matrix datasets.
	OutputDir string `yaml:"output_dir"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		BordersDir:        "models",
		OutlierMultiplier: 8,
		OutputDir:         ".",
	}
}

// Load reads the YAML file at path, applies defaults for missing
// keys and validates the result. An empty path yields Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.BordersDir == "" {
		cfg.BordersDir = Default().BordersDir
	}
	if cfg.OutlierMultiplier == 0 {
		cfg.OutlierMultiplier = Default().OutlierMultiplier
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = Default().OutputDir
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values no run could work with.
func (c Config) Validate() error {
	if c.BordersDir == "" {
		return fmt.Errorf("borders_dir must not be empty")
	}
	if c.OutlierMultiplier <= 0 {
		return fmt.Errorf("outlier_multiplier must be positive, got %g", c.OutlierMultiplier)
	}
	return nil
}

// StorePath returns the artifact database location inside BordersDir.
func (c Config) StorePath() string {
	return filepath.Join(c.BordersDir, "borders.db")
}
