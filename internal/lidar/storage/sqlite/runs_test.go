package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canopy.report/internal/lidar/analysis"
	"github.com/banshee-data/canopy.report/internal/lidar/geom"
	"github.com/banshee-data/canopy.report/internal/lidar/voxel"
	"github.com/banshee-data/canopy.report/internal/lidar/voxspace"
)

func testSpace(t *testing.T) *voxspace.Space {
	t.Helper()
	box := geom.NewBoundingBox(geom.Vec{X: 0, Y: 0, Z: 0}, geom.Vec{X: 4, Y: 3, Z: 2})
	space, err := voxspace.New(box, voxspace.Splitting{Nx: 4, Ny: 3, Nz: 2}, voxspace.ToricFinite)
	require.NoError(t, err)
	return space
}

func TestMigrateIsIdempotent(t *testing.T) {
	s, _ := setupRunStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	require.NoError(t, s.Migrate())
}

func TestInsertAndGetRun(t *testing.T) {
	s, clock := setupRunStore(t)
	space := testSpace(t)
	p := analysis.DefaultParams().WithMaxShotRange(50)

	run, err := NewRun(space, p)
	require.NoError(t, err)
	require.NoError(t, s.InsertRun(run))
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, clock.Now().UnixNano(), run.CreatedUnixNanos)

	got, err := s.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, space.BoundingBox(), got.Box)
	assert.Equal(t, space.Splitting(), got.Split)
	assert.Equal(t, voxspace.ToricFinite, got.Topology)
	assert.Equal(t, voxel.ALS, got.Acquisition)
	assert.JSONEq(t, string(run.ParamsJSON), string(got.ParamsJSON))
	assert.Zero(t, got.FinishedUnixNanos)

	rebuilt, err := got.Space()
	require.NoError(t, err)
	assert.Equal(t, space.Len(), rebuilt.Len())
}

func TestInsertRunKeepsGivenID(t *testing.T) {
	s, _ := setupRunStore(t)
	run, err := NewRun(testSpace(t), analysis.DefaultParams())
	require.NoError(t, err)
	run.RunID = "plot-7"

	require.NoError(t, s.InsertRun(run))
	assert.Equal(t, "plot-7", run.RunID)
	assert.Error(t, s.InsertRun(run), "duplicate run id must be rejected")
}

func TestGetRunNotFound(t *testing.T) {
	s, _ := setupRunStore(t)
	_, err := s.GetRun("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinishRun(t *testing.T) {
	s, clock := setupRunStore(t)
	run, err := NewRun(testSpace(t), analysis.DefaultParams())
	require.NoError(t, err)
	require.NoError(t, s.InsertRun(run))

	clock.Advance(3 * time.Second)
	stats := analysis.Stats{Read: 10, Processed: 7, Missed: 2, Rejected: 1}
	require.NoError(t, s.FinishRun(run.RunID, StatusComplete, stats))

	got, err := s.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, int64(10), got.ShotsTotal)
	assert.Equal(t, int64(7), got.ShotsProcessed)
	assert.Equal(t, int64(2), got.ShotsMissed)
	assert.Equal(t, run.CreatedUnixNanos+int64(3*time.Second), got.FinishedUnixNanos)

	assert.ErrorIs(t, s.FinishRun("missing", StatusFailed, stats), ErrNotFound)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusComplete, StatusFor(nil))
	assert.Equal(t, StatusCancelled, StatusFor(fmt.Errorf("analysis run: %w", context.Canceled)))
	assert.Equal(t, StatusCancelled, StatusFor(context.DeadlineExceeded))
	assert.Equal(t, StatusFailed, StatusFor(errors.New("line 3: bad echo count")))
}

func TestListRunsNewestFirst(t *testing.T) {
	s, clock := setupRunStore(t)
	space := testSpace(t)

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := NewRun(space, analysis.DefaultParams())
		require.NoError(t, err)
		require.NoError(t, s.InsertRun(run))
		ids = append(ids, run.RunID)
		clock.Advance(time.Minute)
	}

	all, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].RunID)
	assert.Equal(t, ids[0], all[2].RunID)

	limited, err := s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, ids[1], limited[1].RunID)
}

func TestSaveAndLoadGrid(t *testing.T) {
	s, _ := setupRunStore(t)
	space := testSpace(t)
	run, err := NewRun(space, analysis.DefaultParams())
	require.NoError(t, err)
	require.NoError(t, s.InsertRun(run))

	g := voxel.NewGrid(space)
	off := space.Linear(voxspace.Index{I: 1, J: 2, K: 1})
	g.Add(off, voxel.Sample{Length: 0.5, Weight: 1, Section: 0.01, Zenith: 10})
	g.Add(off, voxel.Sample{Length: 0.25, Intercepted: true, Weight: 1, EchoWeight: 1, Section: 0.01, Zenith: 12})
	require.NoError(t, g.Finalize(analysis.DefaultParams().FinalizeParams()))

	require.NoError(t, s.SaveGrid(run.RunID, g))

	loaded, err := s.LoadGrid(run.RunID)
	require.NoError(t, err)
	require.Equal(t, g.Len(), loaded.Len())
	assert.Equal(t, 1, loaded.SampledCount())

	v := loaded.Voxels[off]
	assert.Equal(t, int64(2), v.NbSampling)
	assert.Equal(t, int64(1), v.NbEchos)
	assert.InDelta(t, 0.5, v.PathLenNoInterception, 1e-12)
	assert.InDelta(t, g.Voxels[off].PadBeamFraction, v.PadBeamFraction, 1e-12)

	// Saving again replaces the blob.
	g.Reset()
	require.NoError(t, s.SaveGrid(run.RunID, g))
	loaded, err = s.LoadGrid(run.RunID)
	require.NoError(t, err)
	assert.Zero(t, loaded.SampledCount())
}

func TestLoadGridNotFound(t *testing.T) {
	s, _ := setupRunStore(t)
	run, err := NewRun(testSpace(t), analysis.DefaultParams())
	require.NoError(t, err)
	require.NoError(t, s.InsertRun(run))

	_, err = s.LoadGrid(run.RunID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.LoadGrid("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRunCascadesToGrid(t *testing.T) {
	s, _ := setupRunStore(t)
	space := testSpace(t)
	run, err := NewRun(space, analysis.DefaultParams())
	require.NoError(t, err)
	require.NoError(t, s.InsertRun(run))
	require.NoError(t, s.SaveGrid(run.RunID, voxel.NewGrid(space)))

	require.NoError(t, s.DeleteRun(run.RunID))

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM voxel_grids`).Scan(&n))
	assert.Zero(t, n)
	assert.ErrorIs(t, s.DeleteRun(run.RunID), ErrNotFound)
}

func TestRetryOnBusy(t *testing.T) {
	s, clock := setupRunStore(t)

	calls := 0
	err := s.retryOnBusy(func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{20 * time.Millisecond, 40 * time.Millisecond}, clock.Sleeps())

	calls = 0
	err = s.retryOnBusy(func() error {
		calls++
		return errors.New("constraint failed")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "non-busy errors are not retried")

	calls = 0
	err = s.retryOnBusy(func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})
	assert.Error(t, err)
	assert.Equal(t, busyRetries, calls)
}

func TestDSNCarriesPragmas(t *testing.T) {
	d := dsn("/tmp/runs.db")
	assert.True(t, strings.HasPrefix(d, "file:/tmp/runs.db?"))
	assert.Equal(t, len(connPragmas), strings.Count(d, "_pragma="))
	assert.Contains(t, d, "foreign_keys%28ON%29")
}

func TestForeignKeysEnforced(t *testing.T) {
	s, _ := setupRunStore(t)
	err := s.SaveGrid("no-such-run", voxel.NewGrid(testSpace(t)))
	assert.Error(t, err, "grid rows must reference an existing run")
}
