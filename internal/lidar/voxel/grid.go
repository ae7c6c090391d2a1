package voxel

import (
	"fmt"

	"github.com/banshee-data/canopy.report/internal/lidar/voxspace"
)

// Grid is a dense arena of voxels over a voxel space, addressed by
// voxspace.Space.Linear.
type Grid struct {
	space  *voxspace.Space
	Voxels []Voxel
}

// NewGrid allocates a zeroed grid covering space.
func NewGrid(space *voxspace.Space) *Grid {
	return &Grid{space: space, Voxels: make([]Voxel, space.Len())}
}

// Space returns the voxel space the grid covers.
func (g *Grid) Space() *voxspace.Space { return g.space }

// Len returns the number of voxels.
func (g *Grid) Len() int { return len(g.Voxels) }

// At returns the voxel at idx. It panics when idx is outside the grid.
func (g *Grid) At(idx voxspace.Index) *Voxel {
	return &g.Voxels[g.space.Linear(idx)]
}

// Add accumulates s into the voxel at linear offset off.
func (g *Grid) Add(off int, s Sample) {
	g.Voxels[off].Add(s)
}

// Reset zeroes every voxel.
func (g *Grid) Reset() {
	clear(g.Voxels)
}

// SampledCount returns the number of voxels reached by at least one shot.
func (g *Grid) SampledCount() int {
	n := 0
	for i := range g.Voxels {
		if g.Voxels[i].Sampled() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy sharing the immutable space.
func (g *Grid) Clone() *Grid {
	out := &Grid{space: g.space, Voxels: make([]Voxel, len(g.Voxels))}
	copy(out.Voxels, g.Voxels)
	return out
}

// Merge adds the accumulators of o into g. Both grids must have the same
// number of voxels.
func (g *Grid) Merge(o *Grid) error {
	if len(o.Voxels) != len(g.Voxels) {
		return fmt.Errorf("merge: grid sizes differ (%d vs %d)", len(g.Voxels), len(o.Voxels))
	}
	for i := range g.Voxels {
		g.Voxels[i].Merge(&o.Voxels[i])
	}
	return nil
}

// Column returns the voxels of column (i, j) from bottom to top.
func (g *Grid) Column(i, j int) []*Voxel {
	nz := g.space.Splitting().Nz
	out := make([]*Voxel, nz)
	for k := 0; k < nz; k++ {
		out[k] = g.At(voxspace.Index{I: i, J: j, K: k})
	}
	return out
}
