package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canopy.report/internal/config"
	"github.com/banshee-data/canopy.report/internal/lidar/geom"
	"github.com/banshee-data/canopy.report/internal/lidar/voxel"
	"github.com/banshee-data/canopy.report/internal/lidar/voxspace"
)

func TestWeightTable(t *testing.T) {
	assert.Equal(t, 1.0, DefaultWeightTable.Weight(1, 0))
	assert.Equal(t, 0.38, DefaultWeightTable.Weight(2, 1))
	assert.Equal(t, 0.13, DefaultWeightTable.Weight(7, 6))
	assert.Equal(t, 0.125, DefaultWeightTable.Weight(8, 3), "beyond the table the beam is shared")
	assert.Zero(t, DefaultWeightTable.Weight(2, 2))
	assert.Zero(t, DefaultWeightTable.Weight(0, 0))

	for n, row := range DefaultWeightTable {
		sum := 0.0
		for _, w := range row {
			sum += w
		}
		assert.InDelta(t, 1, sum, 1e-9, "row %d", n)
	}
}

func TestLaserByName(t *testing.T) {
	l, err := LaserByName("VZ_400")
	require.NoError(t, err)
	assert.Equal(t, LaserVZ400, l)
	_, err = LaserByName("nope")
	assert.Error(t, err)

	assert.InDelta(t, math.Tan(0.00025)*10*math.Pi, LaserDefaultALS.SectionAt(10), 1e-15)
}

func TestParseWeighting(t *testing.T) {
	w, err := ParseWeighting("none")
	require.NoError(t, err)
	assert.Equal(t, WeightingNone, w)
	w, err = ParseWeighting("rank-table")
	require.NoError(t, err)
	assert.Equal(t, "rank-table", w.String())
	_, err = ParseWeighting("flat")
	assert.Error(t, err)
}

func TestParamsFromDefaultConfig(t *testing.T) {
	p, err := ParamsFromConfig(config.MustLoadDefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, voxel.ALS, p.Acquisition)
	assert.Equal(t, 3.0, p.MaxPAD)
	assert.Equal(t, LaserDefaultALS, p.Laser)
	assert.Equal(t, WeightingRankTable, p.Weighting)
	assert.Equal(t, DefaultWeightTable, p.WeightTable)
	assert.Equal(t, []int{2}, p.DiscardClasses)
	assert.True(t, math.IsInf(p.shotRange(voxspace.FiniteBox), 1))
	assert.Equal(t, DefaultToricShotRange, p.shotRange(voxspace.ToricInfinite))
}

func TestParamsFromConfigOverrides(t *testing.T) {
	cfg, err := config.ParseVoxelConfig([]byte(`{
		"acquisition": "tls",
		"laser": "custom",
		"beam_divergence": 0.002,
		"echo_weighting": "none",
		"max_shot_range": 50
	}`))
	require.NoError(t, err)

	p, err := ParamsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, voxel.TLS, p.Acquisition)
	assert.Equal(t, "custom", p.Laser.Name)
	assert.Equal(t, 0.002, p.Laser.BeamDivergence)
	assert.Equal(t, WeightingNone, p.Weighting)
	assert.Equal(t, 50.0, p.shotRange(voxspace.ToricFinite))
	assert.Empty(t, p.DiscardClasses)
}

func TestSpaceFromConfig(t *testing.T) {
	cfg, err := config.ParseVoxelConfig([]byte(`{
		"min_corner": [0, 0, 0],
		"max_corner": [10, 5, 3],
		"split": [10, 5, 3],
		"topology": "toric-finite"
	}`))
	require.NoError(t, err)
	sp, err := SpaceFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, voxspace.Splitting{Nx: 10, Ny: 5, Nz: 3}, sp.Splitting())
	assert.Equal(t, voxspace.ToricFinite, sp.Topology())

	cfg, err = config.ParseVoxelConfig([]byte(`{
		"min_corner": [0, 0, 0],
		"max_corner": [10, 5, 3],
		"resolution": 2
	}`))
	require.NoError(t, err)
	sp, err = SpaceFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, voxspace.Splitting{Nx: 5, Ny: 3, Nz: 2}, sp.Splitting())
	assert.Equal(t, geom.Vec{X: 10, Y: 6, Z: 4}, sp.BoundingBox().Max)

	_, err = SpaceFromConfig(config.EmptyVoxelConfig())
	assert.Error(t, err)
}
