package traversal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/canopy.report/internal/lidar/geom"
	"github.com/banshee-data/canopy.report/internal/lidar/shot"
	"github.com/banshee-data/canopy.report/internal/lidar/voxspace"
)

func collect(m *Manager, s shot.Shot, maxLength float64) ([]Segment, WalkResult) {
	var segs []Segment
	res := m.Walk(s, maxLength, func(seg Segment) bool {
		segs = append(segs, seg)
		return true
	})
	return segs, res
}

func assertContiguous(t *testing.T, segs []Segment) {
	t.Helper()
	for i := 1; i < len(segs); i++ {
		assert.InDelta(t, segs[i-1].Exit, segs[i].Entry, tol, "gap before segment %d", i)
	}
	for i, s := range segs {
		assert.Greater(t, s.Length(), 0.0, "segment %d", i)
	}
}

func TestWalk_VerticalColumn(t *testing.T) {
	m := newManager(t, voxspace.FiniteBox)
	segs, res := collect(m, shot.New(geom.Vec{X: 0.5, Y: 0.5, Z: 10.5}, geom.Vec{Z: -1}), math.Inf(1))

	require.Len(t, segs, 10)
	assert.True(t, res.Entered)
	assert.True(t, res.Exited)
	assert.Equal(t, 10, res.Segments)
	assert.InDelta(t, 10.5, res.Distance, 1e-8)
	for n, s := range segs {
		assert.Equal(t, voxspace.Index{I: 0, J: 0, K: 9 - n}, s.Index)
		assert.InDelta(t, 1, s.Length(), 1e-8)
	}
	assertContiguous(t, segs)
}

func TestWalk_ClipsAtMaxLength(t *testing.T) {
	m := newManager(t, voxspace.FiniteBox)
	segs, res := collect(m, shot.New(geom.Vec{X: 0.5, Y: 0.5, Z: 10.5}, geom.Vec{Z: -1}), 4)

	require.Len(t, segs, 4)
	assert.False(t, res.Exited)
	assert.Equal(t, voxspace.Index{K: 6}, segs[3].Index)
	assert.Equal(t, 4.0, segs[3].Exit)
	assert.InDelta(t, 0.5, segs[3].Length(), 1e-8)
	assert.InDelta(t, 4, res.Distance, tol)
}

func TestWalk_StopsBeforeGrid(t *testing.T) {
	m := newManager(t, voxspace.FiniteBox)
	segs, res := collect(m, shot.New(geom.Vec{X: 0.5, Y: 0.5, Z: 15}, geom.Vec{Z: -1}), 3)
	assert.Empty(t, segs)
	assert.True(t, res.Entered)
	assert.False(t, res.Exited)
}

func TestWalk_EndsOnEntryFace(t *testing.T) {
	m := newManager(t, voxspace.FiniteBox)
	segs, res := collect(m, shot.New(geom.Vec{X: 0.5, Y: 0.5, Z: 15}, geom.Vec{Z: -1}), 5)

	require.Len(t, segs, 1)
	assert.Equal(t, Segment{Index: voxspace.Index{K: 9}, Entry: 5, Exit: 5}, segs[0])
	assert.Equal(t, 1, res.Segments)
	assert.Equal(t, 5.0, res.Distance)
	assert.False(t, res.Exited)
}

func TestWalk_FirstSegmentStartsAtFace(t *testing.T) {
	m := newManager(t, voxspace.FiniteBox)
	segs, _ := collect(m, shot.New(geom.Vec{X: 0.5, Y: 0.5, Z: 15}, geom.Vec{Z: -1}), math.Inf(1))

	require.Len(t, segs, 10)
	assert.Equal(t, 5.0, segs[0].Entry)
	assert.InDelta(t, 1, segs[0].Length(), 1e-12)
}

func TestWalk_ZeroAxisNeverAdvances(t *testing.T) {
	m := newManager(t, voxspace.FiniteBox)
	segs, _ := collect(m, shot.New(geom.Vec{X: -1, Y: 2.5, Z: 3.5}, geom.Vec{X: 1}), math.Inf(1))

	require.Len(t, segs, 10)
	for n, s := range segs {
		assert.Equal(t, voxspace.Index{I: n, J: 2, K: 3}, s.Index)
	}
}

func TestWalk_DiagonalMovesThroughEdges(t *testing.T) {
	m := newManager(t, voxspace.FiniteBox)
	segs, _ := collect(m, shot.New(geom.Vec{X: 0.5, Y: 0.5, Z: 0.5}, geom.Vec{X: 1, Y: 1, Z: 1}), math.Inf(1))

	require.Len(t, segs, 10)
	for n, s := range segs {
		assert.Equal(t, voxspace.Index{I: n, J: n, K: n}, s.Index)
	}
	assertContiguous(t, segs)
}

func TestWalk_SegmentsSumToChord(t *testing.T) {
	m := newManager(t, voxspace.FiniteBox)
	box := m.Space().BoundingBox()

	shots := []shot.Shot{
		shot.New(geom.Vec{X: 1.3, Y: 2.2, Z: 12}, geom.Vec{X: 0.3, Y: 0.2, Z: -0.9}),
		shot.New(geom.Vec{X: -3, Y: 4.1, Z: 7.7}, geom.Vec{X: 0.8, Y: 0.05, Z: -0.3}),
		shot.New(geom.Vec{X: 5.05, Y: 5.05, Z: 5.05}, geom.Vec{X: -0.2, Y: 0.7, Z: 0.4}),
	}
	for _, s := range shots {
		entry, ok := geom.RayBox(s.Origin, s.Direction, box)
		start := 0.0
		if !box.Contains(s.Origin) {
			require.True(t, ok)
			start = entry.Distance
		}
		p := r3.Add(s.Origin, r3.Scale(start+1e-9, s.Direction))
		exit, ok := geom.RayBox(p, s.Direction, box)
		require.True(t, ok)
		chord := exit.Distance + 1e-9

		segs, res := collect(m, s, math.Inf(1))
		require.True(t, res.Exited)
		sum := 0.0
		for _, seg := range segs {
			sum += seg.Length()
		}
		assert.InDelta(t, chord, sum, 1e-8)
		assertContiguous(t, segs)
	}
}

func TestWalk_ToricRepeatsColumns(t *testing.T) {
	m := newManager(t, voxspace.ToricFinite)
	segs, res := collect(m, shot.New(geom.Vec{X: 0.5, Y: 0.5, Z: 0.5}, geom.Vec{X: 1}), 25)

	require.Len(t, segs, 26)
	assert.False(t, res.Exited)
	for n, s := range segs {
		assert.Equal(t, voxspace.Index{I: n % 10}, s.Index, "segment %d", n)
	}
	assert.InDelta(t, 0.5, segs[0].Length(), tol)
	assert.InDelta(t, 1, segs[10].Length(), 1e-8)
	assert.InDelta(t, 25, segs[25].Exit, tol)
	assertContiguous(t, segs)
}

func TestWalk_ToricUnboundedIsCapped(t *testing.T) {
	m := newManager(t, voxspace.ToricInfinite)
	_, res := collect(m, shot.New(geom.Vec{X: 0.5, Y: 0.5, Z: 0.5}, geom.Vec{Y: 1}), math.Inf(1))
	assert.InDelta(t, ToricRangeFactor*30, res.Distance, tol)
	assert.False(t, res.Exited)
}

func TestWalk_VisitCanStop(t *testing.T) {
	m := newManager(t, voxspace.FiniteBox)
	calls := 0
	res := m.Walk(shot.New(geom.Vec{X: 0.5, Y: 0.5, Z: 10.5}, geom.Vec{Z: -1}), math.Inf(1), func(Segment) bool {
		calls++
		return calls < 3
	})
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Segments)
	assert.False(t, res.Exited)
}

func TestWalk_Miss(t *testing.T) {
	m := newManager(t, voxspace.FiniteBox)
	segs, res := collect(m, shot.New(geom.Vec{X: 20, Y: 20, Z: 20}, geom.Vec{Z: -1}), math.Inf(1))
	assert.Empty(t, segs)
	assert.False(t, res.Entered)
}
