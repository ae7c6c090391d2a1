package shot

import "github.com/banshee-data/canopy.report/internal/lidar/geom"

// EchoFilter decides whether echo i of a shot is kept.
type EchoFilter interface {
	Accept(s Shot, i int) bool
}

// EchoFilterFunc adapts a function to EchoFilter.
type EchoFilterFunc func(s Shot, i int) bool

// Accept implements EchoFilter.
func (f EchoFilterFunc) Accept(s Shot, i int) bool { return f(s, i) }

// ClassFilter drops echoes whose classification is listed. Shots without
// classifications pass unchanged.
type ClassFilter struct {
	discard map[int]bool
}

// NewClassFilter returns a filter discarding the given classes.
func NewClassFilter(classes ...int) *ClassFilter {
	f := &ClassFilter{discard: make(map[int]bool, len(classes))}
	for _, c := range classes {
		f.discard[c] = true
	}
	return f
}

// Accept implements EchoFilter.
func (f *ClassFilter) Accept(s Shot, i int) bool {
	if len(s.Classes) == 0 {
		return true
	}
	return !f.discard[s.Classes[i]]
}

// ShotFilter decides whether a whole shot is traced.
type ShotFilter interface {
	AcceptShot(s Shot) bool
}

// ShotFilterFunc adapts a function to ShotFilter.
type ShotFilterFunc func(s Shot) bool

// AcceptShot implements ShotFilter.
func (f ShotFilterFunc) AcceptShot(s Shot) bool { return f(s) }

// ZenithFilter drops shots steeper than MaxZenith degrees off the downward
// vertical. Airborne scans use it to trim the swath edges.
type ZenithFilter struct {
	MaxZenith float64
}

// AcceptShot implements ShotFilter.
func (f ZenithFilter) AcceptShot(s Shot) bool {
	return geom.ZenithAngle(s.Direction) <= f.MaxZenith
}

// ApplyEchoFilters returns a copy of s keeping only the echoes accepted by
// every filter. The input shot is not modified.
func ApplyEchoFilters(s Shot, filters ...EchoFilter) Shot {
	if len(filters) == 0 || len(s.Echoes) == 0 {
		return s
	}
	out := s
	out.Echoes = make([]float64, 0, len(s.Echoes))
	if len(s.Classes) > 0 {
		out.Classes = make([]int, 0, len(s.Classes))
	}
	for i, e := range s.Echoes {
		keep := true
		for _, f := range filters {
			if !f.Accept(s, i) {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}
		out.Echoes = append(out.Echoes, e)
		if len(s.Classes) > 0 {
			out.Classes = append(out.Classes, s.Classes[i])
		}
	}
	return out
}
