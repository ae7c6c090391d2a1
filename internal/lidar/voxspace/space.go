package voxspace

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/canopy.report/internal/lidar/geom"
)

// BoundaryEpsilon is the tolerance, in world units, applied by IndexOf
// when a point sits on or just outside a face of the box.
const BoundaryEpsilon = 1e-9

// ErrInvalidSpace is returned (wrapped) for any malformed grid definition.
var ErrInvalidSpace = errors.New("invalid voxel space")

// Index addresses one voxel. I, J and K run along X, Y and Z.
type Index struct {
	I, J, K int
}

func (i Index) String() string { return fmt.Sprintf("(%d, %d, %d)", i.I, i.J, i.K) }

// Splitting is the number of cells along each axis.
type Splitting struct {
	Nx, Ny, Nz int
}

// Space is the immutable geometry of a voxel grid.
type Space struct {
	box      geom.BoundingBox
	split    Splitting
	res      geom.Vec
	topology Topology
	extent   geom.Vec
}

// New builds a Space from a bounding box and a splitting. The resolution
// along each axis is the box extent divided by the cell count.
func New(box geom.BoundingBox, split Splitting, topology Topology) (*Space, error) {
	if err := box.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpace, err)
	}
	if split.Nx <= 0 || split.Ny <= 0 || split.Nz <= 0 {
		return nil, fmt.Errorf("%w: splitting must be positive, got %d x %d x %d",
			ErrInvalidSpace, split.Nx, split.Ny, split.Nz)
	}
	if _, ok := topologyNames[topology]; !ok {
		return nil, fmt.Errorf("%w: unknown topology %d", ErrInvalidSpace, int(topology))
	}
	size := box.Size()
	return &Space{
		box:   box,
		split: split,
		res: geom.Vec{
			X: size.X / float64(split.Nx),
			Y: size.Y / float64(split.Ny),
			Z: size.Z / float64(split.Nz),
		},
		topology: topology,
		extent:   size,
	}, nil
}

// NewWithResolution builds a Space with cubic cells of the given size. The
// cell count per axis is ceil(extent/resolution) and the max corner is moved
// so that the box is an exact multiple of the resolution.
func NewWithResolution(minCorner, maxCorner geom.Vec, resolution float64, topology Topology) (*Space, error) {
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return nil, fmt.Errorf("%w: resolution must be positive, got %g", ErrInvalidSpace, resolution)
	}
	box := geom.BoundingBox{Min: minCorner, Max: maxCorner}
	if err := box.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpace, err)
	}
	size := box.Size()
	count := func(extent float64) int {
		// tolerate float noise so that 10/0.1 stays 100
		return int(math.Ceil(extent/resolution - 1e-9))
	}
	split := Splitting{Nx: count(size.X), Ny: count(size.Y), Nz: count(size.Z)}
	box.Max = geom.Vec{
		X: minCorner.X + float64(split.Nx)*resolution,
		Y: minCorner.Y + float64(split.Ny)*resolution,
		Z: minCorner.Z + float64(split.Nz)*resolution,
	}
	s, err := New(box, split, topology)
	if err != nil {
		return nil, err
	}
	s.res = geom.Vec{X: resolution, Y: resolution, Z: resolution}
	return s, nil
}

// BoundingBox returns the world-space box of the grid.
func (s *Space) BoundingBox() geom.BoundingBox { return s.box }

// Splitting returns the cell counts.
func (s *Space) Splitting() Splitting { return s.split }

// Resolution returns the cell size along each axis.
func (s *Space) Resolution() geom.Vec { return s.res }

// Topology returns the horizontal topology.
func (s *Space) Topology() Topology { return s.topology }

// Extent returns the size of the box along each axis.
func (s *Space) Extent() geom.Vec { return s.extent }

// Len returns the number of voxels.
func (s *Space) Len() int { return s.split.Nx * s.split.Ny * s.split.Nz }

// Contains reports whether idx addresses a cell of the grid.
func (s *Space) Contains(idx Index) bool {
	return idx.I >= 0 && idx.I < s.split.Nx &&
		idx.J >= 0 && idx.J < s.split.Ny &&
		idx.K >= 0 && idx.K < s.split.Nz
}

// Linear returns the flat arena offset of idx: i + j*nx + k*nx*ny.
// The caller must ensure Contains(idx).
func (s *Space) Linear(idx Index) int {
	return idx.I + idx.J*s.split.Nx + idx.K*s.split.Nx*s.split.Ny
}

// Unlinear is the inverse of Linear.
func (s *Space) Unlinear(off int) Index {
	layer := s.split.Nx * s.split.Ny
	return Index{I: off % s.split.Nx, J: (off % layer) / s.split.Nx, K: off / layer}
}

// IndexOf maps a world point to the cell containing it. Points outside the
// box by more than BoundaryEpsilon return false; points on the max face map
// to the last cell.
func (s *Space) IndexOf(p geom.Vec) (Index, bool) {
	i, ok := s.axisIndex(p.X, s.box.Min.X, s.box.Max.X, s.res.X, s.split.Nx)
	if !ok {
		return Index{}, false
	}
	j, ok := s.axisIndex(p.Y, s.box.Min.Y, s.box.Max.Y, s.res.Y, s.split.Ny)
	if !ok {
		return Index{}, false
	}
	k, ok := s.axisIndex(p.Z, s.box.Min.Z, s.box.Max.Z, s.res.Z, s.split.Nz)
	if !ok {
		return Index{}, false
	}
	return Index{I: i, J: j, K: k}, true
}

func (s *Space) axisIndex(v, lo, hi, res float64, n int) (int, bool) {
	if math.IsNaN(v) || v < lo-BoundaryEpsilon || v > hi+BoundaryEpsilon {
		return 0, false
	}
	i := int(math.Floor((v - lo) / res))
	if i < 0 {
		i = 0
	} else if i >= n {
		i = n - 1
	}
	return i, true
}

// CellMinCorner returns the lowest corner of the cell idx.
func (s *Space) CellMinCorner(idx Index) geom.Vec {
	return geom.Vec{
		X: s.box.Min.X + float64(idx.I)*s.res.X,
		Y: s.box.Min.Y + float64(idx.J)*s.res.Y,
		Z: s.box.Min.Z + float64(idx.K)*s.res.Z,
	}
}

// CellMaxCorner returns the highest corner of the cell idx.
func (s *Space) CellMaxCorner(idx Index) geom.Vec {
	return s.CellMinCorner(Index{I: idx.I + 1, J: idx.J + 1, K: idx.K + 1})
}

// CellCenter returns the centre of the cell idx.
func (s *Space) CellCenter(idx Index) geom.Vec {
	lo := s.CellMinCorner(idx)
	return geom.Vec{X: lo.X + s.res.X/2, Y: lo.Y + s.res.Y/2, Z: lo.Z + s.res.Z/2}
}

// RelativePoint expresses p in grid-local coordinates, with the min corner
// of the box at the origin.
func (s *Space) RelativePoint(p geom.Vec) geom.Vec {
	return geom.Vec{X: p.X - s.box.Min.X, Y: p.Y - s.box.Min.Y, Z: p.Z - s.box.Min.Z}
}

func (s *Space) String() string {
	return fmt.Sprintf("box=%s split=%dx%dx%d res=(%g, %g, %g) topology=%s",
		s.box, s.split.Nx, s.split.Ny, s.split.Nz, s.res.X, s.res.Y, s.res.Z, s.topology)
}
