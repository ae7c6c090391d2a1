package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canopy.report/internal/fsutil"
	sqlite "github.com/banshee-data/canopy.report/internal/lidar/storage/sqlite"
	"github.com/banshee-data/canopy.report/internal/lidar/voxel"
)

const testShots = `# x y z dx dy dz n ranges
0.5 0.5 10 0 0 -1 1 7.5
1.5 0.5 10 0 0 -1 0
2.5 2.5 10 0 0 -1 2 6.5 8.5
0.5 0.5 10 1 0 0 0
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plot.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testConfig(t *testing.T) string {
	return writeConfig(t, `{
		"min_corner": [0, 0, 0],
		"max_corner": [4, 4, 4],
		"split": [4, 4, 4],
		"echo_weighting": "none",
		"workers": 2
	}`)
}

func TestParseFlagsDefaults(t *testing.T) {
	fs := flag.NewFlagSet("voxelise", flag.ContinueOnError)
	opts, err := parseFlags(fs, []string{"-shots", "s.txt"})
	require.NoError(t, err)

	assert.Equal(t, "s.txt", opts.ShotsPath)
	assert.Equal(t, "voxels.vox", opts.OutPath)
	assert.Empty(t, opts.DBPath)
	assert.Zero(t, opts.Workers)
	assert.Zero(t, opts.MaxZenith)
	assert.False(t, opts.AllowPartial)

	fs = flag.NewFlagSet("voxelise", flag.ContinueOnError)
	opts, err = parseFlags(fs, []string{"-shots", "s.txt", "-max-zenith", "15"})
	require.NoError(t, err)
	assert.Equal(t, 15.0, opts.MaxZenith)
}

func TestParseFlagsRejectsUnknown(t *testing.T) {
	fs := flag.NewFlagSet("voxelise", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	_, err := parseFlags(fs, []string{"-nope"})
	assert.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig(testConfig(t), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.GetWorkers())
	assert.Equal(t, "none", cfg.GetEchoWeighting())

	_, err = loadConfig(writeConfig(t, `{"split": [2, 2, 2]}`), 0)
	assert.Error(t, err, "corners are required")
}

func TestRunWritesGridAndViews(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("shots.txt", []byte(testShots)))

	dbPath := filepath.Join(t.TempDir(), "runs.db")
	opts := Options{
		ConfigPath:   testConfig(t),
		ShotsPath:    "shots.txt",
		OutPath:      "out/plot.vox",
		DBPath:       dbPath,
		PlotPath:     "out/profile.png",
		HeatmapPath:  "out/layer.html",
		HeatmapLayer: 2,
	}
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), opts, fsys, &stdout, &stderr))

	assert.Contains(t, stdout.String(), "shots: read=4 processed=3 missed=1 rejected=0")
	assert.Contains(t, stdout.String(), "PadBF: n=")

	grid, p, err := voxel.ReadFile(fsys, "out/plot.vox")
	require.NoError(t, err)
	assert.Equal(t, voxel.ALS, p.Acquisition)
	assert.Equal(t, 64, grid.Len())
	assert.Positive(t, grid.SampledCount())

	png, err := fsys.ReadFile("out/profile.png")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
	html, err := fsys.ReadFile("out/layer.html")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(html), "PadBF layer 2"))

	store, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sqlite.StatusComplete, runs[0].Status)
	assert.Equal(t, int64(4), runs[0].ShotsTotal)

	saved, err := store.LoadGrid(runs[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, grid.SampledCount(), saved.SampledCount())
}

func TestRunMaxZenithSkipsSteepShots(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	shots := "0.5 0.5 10 0 0 -1 1 7.5\n0.5 0.5 10 1 0 -1 0\n"
	require.NoError(t, fsys.WriteFile("shots.txt", []byte(shots)))

	opts := Options{ConfigPath: testConfig(t), ShotsPath: "shots.txt", OutPath: "g.vox", MaxZenith: 20}
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), opts, fsys, &stdout, io.Discard))
	assert.Contains(t, stdout.String(), "shots: read=2 processed=1 missed=0 rejected=0 filtered=1")
}

func TestRunMissingShots(t *testing.T) {
	opts := Options{ConfigPath: testConfig(t), ShotsPath: "missing.txt", OutPath: "g.vox"}
	err := run(context.Background(), opts, fsutil.NewMemoryFileSystem(), io.Discard, io.Discard)
	assert.ErrorContains(t, err, "open shots")
}

func TestRunBadShotLine(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("shots.txt", []byte("0 0 10 0 0 -1 2 5\n")))

	opts := Options{ConfigPath: testConfig(t), ShotsPath: "shots.txt", OutPath: "g.vox"}
	err := run(context.Background(), opts, fsys, io.Discard, io.Discard)
	assert.ErrorContains(t, err, "line 1")
	assert.False(t, fsys.Exists("g.vox"))
}
