package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical voxelisation defaults file.
// This is the single source of truth for all default voxelisation values.
const DefaultConfigPath = "config/voxel.defaults.json"

// Recognised string values.
var (
	Topologies    = []string{"finite", "toric-finite", "toric-infinite"}
	Acquisitions  = []string{"als", "tls"}
	EchoWeighting = []string{"none", "rank-table"}
	LaserNames    = []string{"DEFAULT_ALS", "LMS_Q560", "VZ_400", "LEICA_SCANSTATION_P30_40", "custom"}
)

// VoxelConfig is the root configuration for a voxelisation run. Every
// field is optional in JSON; Get* accessors supply the defaults.
type VoxelConfig struct {
	// Grid geometry. Either split or resolution must be set.
	MinCorner  *[3]float64 `json:"min_corner,omitempty"`
	MaxCorner  *[3]float64 `json:"max_corner,omitempty"`
	Split      *[3]int     `json:"split,omitempty"`
	Resolution *float64    `json:"resolution,omitempty"`
	Topology   *string     `json:"topology,omitempty"`

	// Inversion
	Acquisition *string  `json:"acquisition,omitempty"` // "als" or "tls"
	MaxPAD      *float64 `json:"max_pad,omitempty"`

	// Beam and echoes
	Laser          *string     `json:"laser,omitempty"`
	BeamDivergence *float64    `json:"beam_divergence,omitempty"` // radians, overrides the laser
	EchoWeighting  *string     `json:"echo_weighting,omitempty"`
	WeightingTable [][]float64 `json:"weighting_table,omitempty"`
	MaxShotRange   *float64    `json:"max_shot_range,omitempty"` // metres, 0 = unlimited
	DiscardClasses *[]int      `json:"discard_classes,omitempty"`

	// Execution
	Workers       *int     `json:"workers,omitempty"` // 0 = one per CPU
	ProgressEvery *int64   `json:"progress_every,omitempty"`
	SceneMargin   *float64 `json:"scene_margin,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyVoxelConfig returns a VoxelConfig with all fields set to nil.
// Use LoadVoxelConfig to load actual values from a file.
func EmptyVoxelConfig() *VoxelConfig {
	return &VoxelConfig{}
}

// LoadVoxelConfig loads a VoxelConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadVoxelConfig(path string) (*VoxelConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseVoxelConfig(data)
}

// ParseVoxelConfig decodes and validates a JSON config.
func ParseVoxelConfig(data []byte) (*VoxelConfig, error) {
	cfg := EmptyVoxelConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *VoxelConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/lidar/analysis/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadVoxelConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Merge returns a copy of c with every field set in o taking precedence.
func (c *VoxelConfig) Merge(o *VoxelConfig) *VoxelConfig {
	out := *c
	if o == nil {
		return &out
	}
	if o.MinCorner != nil {
		out.MinCorner = o.MinCorner
	}
	if o.MaxCorner != nil {
		out.MaxCorner = o.MaxCorner
	}
	if o.Split != nil {
		out.Split = o.Split
	}
	if o.Resolution != nil {
		out.Resolution = o.Resolution
	}
	if o.Topology != nil {
		out.Topology = o.Topology
	}
	if o.Acquisition != nil {
		out.Acquisition = o.Acquisition
	}
	if o.MaxPAD != nil {
		out.MaxPAD = o.MaxPAD
	}
	if o.Laser != nil {
		out.Laser = o.Laser
	}
	if o.BeamDivergence != nil {
		out.BeamDivergence = o.BeamDivergence
	}
	if o.EchoWeighting != nil {
		out.EchoWeighting = o.EchoWeighting
	}
	if o.WeightingTable != nil {
		out.WeightingTable = o.WeightingTable
	}
	if o.MaxShotRange != nil {
		out.MaxShotRange = o.MaxShotRange
	}
	if o.DiscardClasses != nil {
		out.DiscardClasses = o.DiscardClasses
	}
	if o.Workers != nil {
		out.Workers = o.Workers
	}
	if o.ProgressEvery != nil {
		out.ProgressEvery = o.ProgressEvery
	}
	if o.SceneMargin != nil {
		out.SceneMargin = o.SceneMargin
	}
	return &out
}

func oneOf(name, v string, allowed []string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", name, allowed, v)
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// Validate checks that the configuration values are valid. Geometry is
// only checked for consistency here; RequireGeometry checks presence.
func (c *VoxelConfig) Validate() error {
	if c.MinCorner != nil && c.MaxCorner != nil {
		for a := 0; a < 3; a++ {
			lo, hi := c.MinCorner[a], c.MaxCorner[a]
			if !finite(lo) || !finite(hi) {
				return fmt.Errorf("corners must be finite, got min=%v max=%v", *c.MinCorner, *c.MaxCorner)
			}
			if lo >= hi {
				return fmt.Errorf("min_corner must be below max_corner on axis %d, got %g >= %g", a, lo, hi)
			}
		}
	}
	if c.Split != nil {
		for a, n := range c.Split {
			if n <= 0 {
				return fmt.Errorf("split must be positive on axis %d, got %d", a, n)
			}
		}
	}
	if c.Resolution != nil && (!finite(*c.Resolution) || *c.Resolution <= 0) {
		return fmt.Errorf("resolution must be positive, got %g", *c.Resolution)
	}
	if c.Topology != nil {
		if err := oneOf("topology", *c.Topology, Topologies); err != nil {
			return err
		}
	}
	if c.Acquisition != nil {
		if err := oneOf("acquisition", *c.Acquisition, Acquisitions); err != nil {
			return err
		}
	}
	if c.MaxPAD != nil && (!finite(*c.MaxPAD) || *c.MaxPAD <= 0) {
		return fmt.Errorf("max_pad must be positive, got %g", *c.MaxPAD)
	}
	if c.Laser != nil {
		if err := oneOf("laser", *c.Laser, LaserNames); err != nil {
			return err
		}
		if *c.Laser == "custom" && c.BeamDivergence == nil {
			return fmt.Errorf("laser \"custom\" requires beam_divergence")
		}
	}
	if c.BeamDivergence != nil && (!finite(*c.BeamDivergence) || *c.BeamDivergence < 0 || *c.BeamDivergence >= math.Pi) {
		return fmt.Errorf("beam_divergence must be in [0, pi) radians, got %g", *c.BeamDivergence)
	}
	if c.EchoWeighting != nil {
		if err := oneOf("echo_weighting", *c.EchoWeighting, EchoWeighting); err != nil {
			return err
		}
	}
	for n, row := range c.WeightingTable {
		if len(row) != n+1 {
			return fmt.Errorf("weighting_table row %d must have %d entries, got %d", n, n+1, len(row))
		}
		sum := 0.0
		for _, w := range row {
			if !finite(w) || w < 0 || w > 1 {
				return fmt.Errorf("weighting_table row %d has weight %g outside [0, 1]", n, w)
			}
			sum += w
		}
		if sum > 1+1e-6 {
			return fmt.Errorf("weighting_table row %d sums to %g > 1", n, sum)
		}
	}
	if c.MaxShotRange != nil && (!finite(*c.MaxShotRange) || *c.MaxShotRange < 0) {
		return fmt.Errorf("max_shot_range must be non-negative, got %g", *c.MaxShotRange)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.ProgressEvery != nil && *c.ProgressEvery < 0 {
		return fmt.Errorf("progress_every must be non-negative, got %d", *c.ProgressEvery)
	}
	if c.SceneMargin != nil && (!finite(*c.SceneMargin) || *c.SceneMargin < 0) {
		return fmt.Errorf("scene_margin must be non-negative, got %g", *c.SceneMargin)
	}
	return nil
}

// RequireGeometry returns an error unless both corners and a split or a
// resolution are present.
func (c *VoxelConfig) RequireGeometry() error {
	if c.MinCorner == nil || c.MaxCorner == nil {
		return fmt.Errorf("min_corner and max_corner are required")
	}
	if c.Split == nil && c.Resolution == nil {
		return fmt.Errorf("one of split or resolution is required")
	}
	return nil
}

// GetTopology returns the grid topology name.
func (c *VoxelConfig) GetTopology() string {
	if c.Topology == nil {
		return "finite"
	}
	return *c.Topology
}

// GetAcquisition returns "als" or "tls".
func (c *VoxelConfig) GetAcquisition() string {
	if c.Acquisition == nil {
		return "als"
	}
	return *c.Acquisition
}

// GetMaxPAD returns the PAD clamp.
func (c *VoxelConfig) GetMaxPAD() float64 {
	if c.MaxPAD == nil {
		return 3.0
	}
	return *c.MaxPAD
}

// GetLaser returns the laser specification name.
func (c *VoxelConfig) GetLaser() string {
	if c.Laser == nil {
		if c.GetAcquisition() == "tls" {
			return "VZ_400"
		}
		return "DEFAULT_ALS"
	}
	return *c.Laser
}

// GetBeamDivergence returns the divergence override and whether one is set.
func (c *VoxelConfig) GetBeamDivergence() (float64, bool) {
	if c.BeamDivergence == nil {
		return 0, false
	}
	return *c.BeamDivergence, true
}

// GetEchoWeighting returns the echo weighting mode.
func (c *VoxelConfig) GetEchoWeighting() string {
	if c.EchoWeighting == nil {
		return "rank-table"
	}
	return *c.EchoWeighting
}

// GetMaxShotRange returns the maximum traced distance for shots without
// echoes. 0 means unlimited.
func (c *VoxelConfig) GetMaxShotRange() float64 {
	if c.MaxShotRange == nil {
		return 0
	}
	return *c.MaxShotRange
}

// GetDiscardClasses returns the echo classifications to drop. Airborne
// runs discard ground returns unless configured otherwise.
func (c *VoxelConfig) GetDiscardClasses() []int {
	if c.DiscardClasses == nil {
		if c.GetAcquisition() == "als" {
			return []int{2}
		}
		return nil
	}
	return *c.DiscardClasses
}

// GetWorkers returns the worker count; 0 means one per CPU.
func (c *VoxelConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetProgressEvery returns the progress reporting interval in shots.
func (c *VoxelConfig) GetProgressEvery() int64 {
	if c.ProgressEvery == nil {
		return 100000
	}
	return *c.ProgressEvery
}

// GetSceneMargin returns the padding of the entry test box.
func (c *VoxelConfig) GetSceneMargin() float64 {
	if c.SceneMargin == nil {
		return 0
	}
	return *c.SceneMargin
}
