package traversal

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/canopy.report/internal/lidar/geom"
	"github.com/banshee-data/canopy.report/internal/lidar/shot"
	"github.com/banshee-data/canopy.report/internal/lidar/voxspace"
)

// SnapMargin is how far an entry point is pushed inside the grid on the
// axis of the face it hit, so that it maps to a voxel on the inner side.
const SnapMargin = 1e-10

// CrossingContext is the result of one traversal step.
type CrossingContext struct {
	// Next is the voxel entered, or nil when the shot leaves the grid.
	Next *voxspace.Index
	// Length is the distance covered by the step: from the shot origin to
	// the face it enters through for GetFirstVoxel, across the current
	// voxel for CrossVoxel.
	Length float64
	// Translation is the offset to add to the ray origin when the step
	// wrapped around a toric boundary, or the origin-to-entry offset for
	// GetFirstVoxel. Nil when no translation applies.
	Translation *geom.Vec
}

// Manager traverses shots through one voxel space. It holds no per-shot
// state and is safe for concurrent use.
type Manager struct {
	space *voxspace.Space
	// scene is the grid box grown by the scene margin. Origins inside it
	// start from their own position instead of a face intersection.
	scene geom.BoundingBox
}

// NewManager returns a Manager over space. sceneMargin grows the box used
// for the entry test; negative values are treated as zero.
func NewManager(space *voxspace.Space, sceneMargin float64) *Manager {
	if sceneMargin < 0 {
		sceneMargin = 0
	}
	m := &Manager{
		space: space,
		scene: space.BoundingBox().Padded(sceneMargin),
	}
	diagf("manager ready: space=%s sceneMargin=%g", space, sceneMargin)
	return m
}

// Space returns the voxel space being traversed.
func (m *Manager) Space() *voxspace.Space { return m.space }

// GetFirstVoxel returns the voxel where s enters the grid. When the origin
// is already inside the scene the origin's voxel is returned with zero
// length. The boolean is false when the shot misses the grid or points
// away from it.
//
// Length is the distance to the face itself while Translation leads to the
// entry point snapped SnapMargin inside it, so an echo lying exactly on the
// entry face is not mistaken for one ahead of the grid.
func (m *Manager) GetFirstVoxel(s shot.Shot) (CrossingContext, bool) {
	entry := s.Origin
	length := 0.0
	if !m.scene.Contains(s.Origin) {
		hit, ok := geom.RayBox(s.Origin, s.Direction, m.space.BoundingBox())
		if !ok {
			tracef("shot %d misses the grid", s.ID)
			return CrossingContext{}, false
		}
		face := r3.Scale(hit.Distance, s.Direction)
		length = r3.Norm(face)
		entry = m.snapInside(r3.Add(s.Origin, face), hit)
	}

	idx, ok := m.space.IndexOf(entry)
	if !ok {
		// Origin inside the scene margin but outside the grid itself.
		tracef("shot %d starts at %v outside the grid", s.ID, entry)
		return CrossingContext{}, false
	}
	offset := r3.Sub(entry, s.Origin)
	return CrossingContext{
		Next:        &idx,
		Length:      length,
		Translation: &offset,
	}, true
}

// snapInside moves p onto the inner side of the grid face given by hit.
func (m *Manager) snapInside(p geom.Vec, hit geom.Intersection) geom.Vec {
	box := m.space.BoundingBox()
	a := hit.Axis
	if geom.Component(hit.Normal, a) < 0 {
		return geom.WithComponent(p, a, geom.Component(box.Min, a)+SnapMargin)
	}
	return geom.WithComponent(p, a, geom.Component(box.Max, a)-SnapMargin)
}

// CrossVoxel steps the ray (origin, dir) out of voxel cur. origin is any
// point on the ray, usually where the ray entered cur. Every axis whose
// wall is reached at the minimal distance advances, so crossing an edge or
// a corner moves diagonally. The vertical axis never wraps.
func (m *Manager) CrossVoxel(origin, dir geom.Vec, cur voxspace.Index) CrossingContext {
	lo := m.space.CellMinCorner(cur)
	hi := m.space.CellMaxCorner(cur)

	var dist [3]float64
	for a := geom.AxisX; a <= geom.AxisZ; a++ {
		d := geom.Component(dir, a)
		switch {
		case d > 0:
			dist[a] = math.Abs((geom.Component(hi, a) - geom.Component(origin, a)) / d)
		case d < 0:
			dist[a] = math.Abs((geom.Component(lo, a) - geom.Component(origin, a)) / d)
		default:
			dist[a] = math.Inf(1)
		}
	}
	step := min(dist[0], dist[1], dist[2])
	if math.IsInf(step, 1) {
		return CrossingContext{Length: step}
	}

	next := [3]int{cur.I, cur.J, cur.K}
	for a := geom.AxisX; a <= geom.AxisZ; a++ {
		if dist[a] == step {
			if geom.Component(dir, a) > 0 {
				next[a]++
			} else {
				next[a]--
			}
		}
	}

	split := m.space.Splitting()
	if next[2] < 0 || next[2] >= split.Nz {
		return CrossingContext{Length: step}
	}

	counts := [2]int{split.Nx, split.Ny}
	wrapped := false
	var shift geom.Vec
	extent := m.space.Extent()
	for a := geom.AxisX; a <= geom.AxisY; a++ {
		if next[a] >= 0 && next[a] < counts[a] {
			continue
		}
		if !m.space.Topology().IsToric() {
			return CrossingContext{Length: step}
		}
		e := geom.Component(extent, a)
		if next[a] >= counts[a] {
			next[a] -= counts[a]
			shift = geom.WithComponent(shift, a, -e)
		} else {
			next[a] += counts[a]
			shift = geom.WithComponent(shift, a, e)
		}
		wrapped = true
	}

	idx := voxspace.Index{I: next[0], J: next[1], K: next[2]}
	ctx := CrossingContext{Next: &idx, Length: step}
	if wrapped {
		ctx.Translation = &shift
	}
	return ctx
}
