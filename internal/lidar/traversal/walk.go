package traversal

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/canopy.report/internal/lidar/shot"
	"github.com/banshee-data/canopy.report/internal/lidar/voxspace"
)

// ToricRangeFactor bounds walks with no length limit on toric grids, as a
// multiple of the sum of the grid extents. A horizontal shot would
// otherwise wrap forever.
const ToricRangeFactor = 10

// Segment is the part of a shot inside one voxel. Entry and Exit are
// distances from the shot origin.
type Segment struct {
	Index voxspace.Index
	Entry float64
	Exit  float64
}

// Length returns the path length inside the voxel.
func (s Segment) Length() float64 { return s.Exit - s.Entry }

// WalkResult summarises one walk.
type WalkResult struct {
	// Entered is false when the shot never reached the grid.
	Entered bool
	// Segments is the number of segments visited.
	Segments int
	// Distance is how far along the shot the walk stopped.
	Distance float64
	// Exited is true when the walk ended by leaving the grid.
	Exited bool
}

// Walk traces s through the grid and calls visit for each voxel crossed,
// in order, with segment ends clipped to maxLength. Zero-length segments
// are not reported, except for the first voxel when maxLength falls
// exactly on the entry face. Walking stops when the shot leaves the grid,
// when maxLength is reached, or when visit returns false. Use math.Inf(1)
// for an unbounded walk.
func (m *Manager) Walk(s shot.Shot, maxLength float64, visit func(Segment) bool) WalkResult {
	if math.IsInf(maxLength, 1) && m.space.Topology().IsToric() {
		e := m.space.Extent()
		maxLength = ToricRangeFactor * (e.X + e.Y + e.Z)
	}

	first, ok := m.GetFirstVoxel(s)
	if !ok {
		return WalkResult{}
	}
	res := WalkResult{Entered: true, Distance: first.Length}
	if first.Length > maxLength {
		return res
	}

	// The ray origin absorbs toric translations; local is the distance
	// from that origin, separate from the distance bookkeeping.
	ray := s.Ray()
	ray.Origin = r3.Add(ray.Origin, *first.Translation)
	local := 0.0
	// travelled starts at the snapped entry point, entry at the face.
	travelled := r3.Norm(*first.Translation)
	entry := first.Length
	idx := *first.Next

	for {
		step := m.CrossVoxel(ray.PointAt(local), ray.Direction, idx)
		if math.IsInf(step.Length, 1) {
			opsf("shot %d has a zero direction, walk aborted", s.ID)
			travelled = entry
			break
		}

		exit := max(min(travelled+step.Length, maxLength), entry)
		if exit > entry || exit == maxLength {
			res.Segments++
			if !visit(Segment{Index: idx, Entry: entry, Exit: exit}) {
				travelled = exit
				break
			}
		}
		if exit >= maxLength {
			travelled = exit
			break
		}

		travelled += step.Length
		entry = travelled
		local += step.Length
		if step.Next == nil {
			res.Exited = true
			break
		}
		if step.Translation != nil {
			ray.Origin = r3.Add(ray.Origin, *step.Translation)
		}
		idx = *step.Next
	}

	res.Distance = travelled
	tracef("shot %d walked %d segments over %g", s.ID, res.Segments, travelled)
	return res
}
