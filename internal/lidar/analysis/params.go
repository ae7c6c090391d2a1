package analysis

import (
	"fmt"
	"math"

	"github.com/banshee-data/canopy.report/internal/config"
	"github.com/banshee-data/canopy.report/internal/lidar/geom"
	"github.com/banshee-data/canopy.report/internal/lidar/voxel"
	"github.com/banshee-data/canopy.report/internal/lidar/voxspace"
)

// DefaultToricShotRange bounds shots without echoes on toric grids.
const DefaultToricShotRange = 1000.0

// LaserSpec describes the emitted beam.
type LaserSpec struct {
	Name string
	// BeamDiameterAtExit in metres.
	BeamDiameterAtExit float64
	// BeamDivergence is the full divergence angle in radians.
	BeamDivergence float64
}

// Known instruments.
var (
	LaserDefaultALS  = LaserSpec{Name: "DEFAULT_ALS", BeamDiameterAtExit: 0.0003, BeamDivergence: 0.0005}
	LaserLMSQ560     = LaserSpec{Name: "LMS_Q560", BeamDiameterAtExit: 0.0003, BeamDivergence: 0.0005}
	LaserVZ400       = LaserSpec{Name: "VZ_400", BeamDiameterAtExit: 0.007, BeamDivergence: 0.00035}
	LaserLeicaP30P40 = LaserSpec{Name: "LEICA_SCANSTATION_P30_40", BeamDiameterAtExit: 0.0035, BeamDivergence: 0.00023}
	knownLasers      = []LaserSpec{LaserDefaultALS, LaserLMSQ560, LaserVZ400, LaserLeicaP30P40}
)

// LaserByName returns the instrument called name.
func LaserByName(name string) (LaserSpec, error) {
	for _, l := range knownLasers {
		if l.Name == name {
			return l, nil
		}
	}
	return LaserSpec{}, fmt.Errorf("unknown laser %q", name)
}

// SectionAt returns the beam section term accumulated at distance d from
// the emitter.
func (l LaserSpec) SectionAt(d float64) float64 {
	return math.Tan(l.BeamDivergence/2) * d * math.Pi
}

// Weighting selects how echoes share the beam.
type Weighting int

const (
	// WeightingNone gives every echo and every sampling a weight of 1.
	WeightingNone Weighting = iota
	// WeightingRankTable takes echo weights from a table indexed by echo
	// count and rank; the sampling weight is what remains of the beam.
	WeightingRankTable
)

func (w Weighting) String() string {
	if w == WeightingRankTable {
		return "rank-table"
	}
	return "none"
}

// ParseWeighting parses "none" or "rank-table".
func ParseWeighting(s string) (Weighting, error) {
	switch s {
	case "none":
		return WeightingNone, nil
	case "rank-table", "":
		return WeightingRankTable, nil
	}
	return WeightingNone, fmt.Errorf("unknown echo weighting %q", s)
}

// WeightTable holds, for n echoes, the beam fraction of each rank in row
// n-1.
type WeightTable [][]float64

// DefaultWeightTable is the airborne rank table.
var DefaultWeightTable = WeightTable{
	{1},
	{0.62, 0.38},
	{0.40, 0.35, 0.25},
	{0.28, 0.29, 0.24, 0.19},
	{0.21, 0.24, 0.21, 0.19, 0.15},
	{0.16, 0.21, 0.19, 0.18, 0.14, 0.12},
	{0.15, 0.17, 0.15, 0.16, 0.12, 0.12, 0.13},
}

// Weight returns the fraction of rank (0-based) in a shot of count echoes.
// Counts beyond the table share the beam equally.
func (t WeightTable) Weight(count, rank int) float64 {
	if count <= 0 || rank < 0 || rank >= count {
		return 0
	}
	if count <= len(t) && len(t[count-1]) == count {
		return t[count-1][rank]
	}
	return 1 / float64(count)
}

// Params are the runtime parameters of a voxelisation.
type Params struct {
	Acquisition voxel.Acquisition
	MaxPAD      float64
	Laser       LaserSpec
	Weighting   Weighting
	WeightTable WeightTable
	// MaxShotRange bounds shots without echoes; 0 means unlimited on
	// finite grids and DefaultToricShotRange on toric ones.
	MaxShotRange   float64
	SceneMargin    float64
	DiscardClasses []int
}

// DefaultParams returns airborne defaults.
func DefaultParams() Params {
	return Params{
		Acquisition:    voxel.ALS,
		MaxPAD:         voxel.DefaultMaxPAD,
		Laser:          LaserDefaultALS,
		Weighting:      WeightingRankTable,
		WeightTable:    DefaultWeightTable,
		DiscardClasses: []int{2},
	}
}

// WithAcquisition sets the acquisition mode.
func (p Params) WithAcquisition(a voxel.Acquisition) Params { p.Acquisition = a; return p }

// WithMaxPAD sets the PAD clamp.
func (p Params) WithMaxPAD(v float64) Params { p.MaxPAD = v; return p }

// WithLaser sets the laser specification.
func (p Params) WithLaser(l LaserSpec) Params { p.Laser = l; return p }

// WithWeighting sets the echo weighting mode.
func (p Params) WithWeighting(w Weighting) Params { p.Weighting = w; return p }

// WithMaxShotRange sets the range of shots without echoes.
func (p Params) WithMaxShotRange(v float64) Params { p.MaxShotRange = v; return p }

// WithDiscardClasses sets the echo classes to drop.
func (p Params) WithDiscardClasses(c ...int) Params { p.DiscardClasses = c; return p }

// Validate checks the parameters.
func (p Params) Validate() error {
	if err := (voxel.FinalizeParams{Acquisition: p.Acquisition, MaxPAD: p.MaxPAD}).Validate(); err != nil {
		return err
	}
	if p.Laser.BeamDivergence < 0 || p.Laser.BeamDivergence >= math.Pi {
		return fmt.Errorf("beam divergence must be in [0, pi), got %g", p.Laser.BeamDivergence)
	}
	if p.Weighting == WeightingRankTable && len(p.WeightTable) == 0 {
		return fmt.Errorf("rank-table weighting needs a weight table")
	}
	if p.MaxShotRange < 0 || math.IsNaN(p.MaxShotRange) {
		return fmt.Errorf("max shot range must be non-negative, got %g", p.MaxShotRange)
	}
	if p.SceneMargin < 0 || math.IsNaN(p.SceneMargin) {
		return fmt.Errorf("scene margin must be non-negative, got %g", p.SceneMargin)
	}
	return nil
}

// FinalizeParams returns the parameters used for PAD derivation.
func (p Params) FinalizeParams() voxel.FinalizeParams {
	return voxel.FinalizeParams{Acquisition: p.Acquisition, MaxPAD: p.MaxPAD}
}

// shotRange returns the traced length of a shot without echoes.
func (p Params) shotRange(topo voxspace.Topology) float64 {
	if p.MaxShotRange > 0 {
		return p.MaxShotRange
	}
	if topo.IsToric() {
		return DefaultToricShotRange
	}
	return math.Inf(1)
}

// ParamsFromConfig builds Params from a loaded VoxelConfig.
func ParamsFromConfig(cfg *config.VoxelConfig) (Params, error) {
	if err := cfg.Validate(); err != nil {
		return Params{}, err
	}
	acq, err := voxel.ParseAcquisition(cfg.GetAcquisition())
	if err != nil {
		return Params{}, err
	}
	w, err := ParseWeighting(cfg.GetEchoWeighting())
	if err != nil {
		return Params{}, err
	}

	laser := LaserSpec{Name: "custom"}
	if name := cfg.GetLaser(); name != "custom" {
		if laser, err = LaserByName(name); err != nil {
			return Params{}, err
		}
	}
	if div, ok := cfg.GetBeamDivergence(); ok {
		laser.BeamDivergence = div
	}

	table := DefaultWeightTable
	if len(cfg.WeightingTable) > 0 {
		table = WeightTable(cfg.WeightingTable)
	}

	p := Params{
		Acquisition:    acq,
		MaxPAD:         cfg.GetMaxPAD(),
		Laser:          laser,
		Weighting:      w,
		WeightTable:    table,
		MaxShotRange:   cfg.GetMaxShotRange(),
		SceneMargin:    cfg.GetSceneMargin(),
		DiscardClasses: cfg.GetDiscardClasses(),
	}
	return p, p.Validate()
}

// SpaceFromConfig builds the voxel space described by cfg. A split takes
// precedence over a resolution.
func SpaceFromConfig(cfg *config.VoxelConfig) (*voxspace.Space, error) {
	if err := cfg.RequireGeometry(); err != nil {
		return nil, err
	}
	topo, err := voxspace.ParseTopology(cfg.GetTopology())
	if err != nil {
		return nil, err
	}
	minC := geom.Vec{X: cfg.MinCorner[0], Y: cfg.MinCorner[1], Z: cfg.MinCorner[2]}
	maxC := geom.Vec{X: cfg.MaxCorner[0], Y: cfg.MaxCorner[1], Z: cfg.MaxCorner[2]}
	if cfg.Split != nil {
		s := cfg.Split
		return voxspace.New(geom.BoundingBox{Min: minC, Max: maxC}, voxspace.Splitting{Nx: s[0], Ny: s[1], Nz: s[2]}, topo)
	}
	return voxspace.NewWithResolution(minC, maxC, *cfg.Resolution, topo)
}
