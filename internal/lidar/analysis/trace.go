package analysis

import (
	"github.com/banshee-data/canopy.report/internal/lidar/geom"
	"github.com/banshee-data/canopy.report/internal/lidar/shot"
	"github.com/banshee-data/canopy.report/internal/lidar/traversal"
	"github.com/banshee-data/canopy.report/internal/lidar/voxel"
)

// pending is a sample waiting to be applied to the voxel at off.
type pending struct {
	off    int
	sample voxel.Sample
}

// tracer converts shots into voxel samples. It only reads immutable
// state, so one tracer is shared by all workers.
type tracer struct {
	params  Params
	manager *traversal.Manager
	filters []shot.EchoFilter
}

func (t *tracer) echoWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		if t.params.Weighting == WeightingRankTable {
			w[i] = t.params.WeightTable.Weight(n, i)
		} else {
			w[i] = 1
		}
	}
	return w
}

// trace appends the samples of s to buf. entered is false when the shot
// never reached the grid.
func (t *tracer) trace(s shot.Shot, buf []pending) (out []pending, entered bool) {
	s = shot.ApplyEchoFilters(s, t.filters...)
	space := t.manager.Space()

	usable := t.params.shotRange(space.Topology())
	last, hasEchoes := s.LastEcho()
	if hasEchoes {
		usable = last
	}

	weights := t.echoWeights(len(s.Echoes))
	residual := 1.0
	next := 0
	zenith := geom.ZenithAngle(s.Direction)
	rankTable := t.params.Weighting == WeightingRankTable

	consume := func(e int) {
		if rankTable {
			residual -= weights[e]
		}
	}

	res := t.manager.Walk(s, usable, func(seg traversal.Segment) bool {
		// Echoes ahead of the grid dim the beam but are not recorded.
		for next < len(s.Echoes) && s.Echoes[next] < seg.Entry {
			consume(next)
			next++
		}

		off := space.Linear(seg.Index)
		cursor := seg.Entry
		clipped := seg.Exit >= usable
		for next < len(s.Echoes) {
			d := s.Echoes[next]
			if d > seg.Exit || (d == seg.Exit && !clipped) {
				break
			}
			buf = append(buf, pending{off: off, sample: voxel.Sample{
				Length:      d - cursor,
				Intercepted: true,
				Weight:      residual,
				EchoWeight:  weights[next],
				Section:     t.params.Laser.SectionAt((cursor + d) / 2),
				Zenith:      zenith,
			}})
			consume(next)
			cursor = d
			next++
		}

		if cursor < seg.Exit {
			buf = append(buf, pending{off: off, sample: voxel.Sample{
				Length:   seg.Exit - cursor,
				Outgoing: !clipped,
				Weight:   residual,
				Section:  t.params.Laser.SectionAt((cursor + seg.Exit) / 2),
				Zenith:   zenith,
			}})
		}
		return true
	})

	if res.Entered {
		tracef("shot %d: %d segments, %d samples, stopped at %g", s.ID, res.Segments, len(buf), res.Distance)
	}
	return buf, res.Entered
}
