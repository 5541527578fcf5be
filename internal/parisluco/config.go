package parisluco

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config selects which Paris-Luco sequence to replay and how fast.
type Config struct {
	// BaseDir is the dataset root containing one directory per sequence.
	BaseDir string `yaml:"base_dir"`

	// Sequence is the sequence directory name under BaseDir.
	Sequence string `yaml:"sequence"`

	// TimeWarpScale multiplies wall-clock time during replay; 2.0 replays
	// at twice real time.
	TimeWarpScale float64 `yaml:"time_warp_scale"`
}

// ParseConfig decodes the module's YAML config block and applies defaults.
func ParseConfig(block string) (Config, error) {
	cfg := Config{Sequence: "00", TimeWarpScale: 1.0}
	if block != "" {
		if err := yaml.Unmarshal([]byte(block), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse dataset config: %w", err)
		}
	}
	if cfg.BaseDir == "" {
		return Config{}, fmt.Errorf("dataset config: base_dir is required")
	}
	if cfg.TimeWarpScale <= 0 {
		return Config{}, fmt.Errorf("dataset config: time_warp_scale must be > 0, got %v", cfg.TimeWarpScale)
	}
	return cfg, nil
}
