// Package config loads the JSON tuning file for the mapping pipeline.
// Fields are pointers so a partial file only overrides what it names; the
// same schema is reusable for runtime parameter updates.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig carries optional overrides for the voxel map and the
// likelihood model.
type TuningConfig struct {
	// Voxel map params
	DecimationSize    *float64 `json:"decimation_size,omitempty"`
	MaxNNRadius       *float64 `json:"max_nn_radius,omitempty"`
	MaxPointsPerVoxel *uint32  `json:"max_points_per_voxel,omitempty"`

	// Likelihood params
	SigmaDist            *float64 `json:"sigma_dist,omitempty"`
	MaxCorrDistance      *float64 `json:"max_corr_distance,omitempty"`
	LikelihoodDecimation *uint32  `json:"likelihood_decimation,omitempty"`

	// Snapshot params
	SnapshotEvery *string `json:"snapshot_every,omitempty"` // duration string like "30s"
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under a small size cap; omitted fields
// remain nil so callers keep their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every present field for a sane value.
func (c *TuningConfig) Validate() error {
	if c.DecimationSize != nil && *c.DecimationSize <= 0 {
		return fmt.Errorf("decimation_size must be > 0, got %v", *c.DecimationSize)
	}
	if c.MaxNNRadius != nil && *c.MaxNNRadius <= 0 {
		return fmt.Errorf("max_nn_radius must be > 0, got %v", *c.MaxNNRadius)
	}
	if c.DecimationSize != nil && c.MaxNNRadius != nil && *c.MaxNNRadius < *c.DecimationSize {
		return fmt.Errorf("max_nn_radius (%v) must be >= decimation_size (%v)",
			*c.MaxNNRadius, *c.DecimationSize)
	}
	if c.SigmaDist != nil && *c.SigmaDist <= 0 {
		return fmt.Errorf("sigma_dist must be > 0, got %v", *c.SigmaDist)
	}
	if c.MaxCorrDistance != nil && *c.MaxCorrDistance <= 0 {
		return fmt.Errorf("max_corr_distance must be > 0, got %v", *c.MaxCorrDistance)
	}
	if c.LikelihoodDecimation != nil && *c.LikelihoodDecimation == 0 {
		return fmt.Errorf("likelihood_decimation must be >= 1")
	}
	if c.SnapshotEvery != nil {
		if _, err := time.ParseDuration(*c.SnapshotEvery); err != nil {
			return fmt.Errorf("snapshot_every: %w", err)
		}
	}
	return nil
}

// GetSnapshotEvery returns the parsed snapshot cadence, or fallback when
// unset.
func (c *TuningConfig) GetSnapshotEvery(fallback time.Duration) time.Duration {
	if c == nil || c.SnapshotEvery == nil {
		return fallback
	}
	d, err := time.ParseDuration(*c.SnapshotEvery)
	if err != nil {
		return fallback
	}
	return d
}

// GetFloat returns *v, or fallback when v is nil.
func GetFloat(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// GetUint32 returns *v, or fallback when v is nil.
func GetUint32(v *uint32, fallback uint32) uint32 {
	if v == nil {
		return fallback
	}
	return *v
}
