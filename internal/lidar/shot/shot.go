package shot

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/canopy.report/internal/lidar/geom"
)

// GroundClass is the LAS classification code for ground returns.
const GroundClass = 2

// UnitTolerance is how far the norm of a shot direction may stray from 1.
const UnitTolerance = 1e-9

// Shot is one emitted laser pulse and its recorded echoes.
type Shot struct {
	ID        int64
	Origin    geom.Vec
	Direction geom.Vec // unit length
	// Echoes are ranges from Origin along Direction, ascending.
	Echoes []float64
	// Classes optionally holds one classification per echo.
	Classes []int
}

// New returns a shot with a normalised direction.
func New(origin, dir geom.Vec, echoes ...float64) Shot {
	if n := r3.Norm(dir); n > 0 {
		dir = r3.Scale(1/n, dir)
	}
	return Shot{Origin: origin, Direction: dir, Echoes: echoes}
}

// Validate checks that the shot can be traced: finite origin, finite unit
// direction, finite non-negative ascending echoes, and a Classes slice
// that is empty or matches Echoes. Echo ranges are world distances, so a
// direction that is not unit length would scale every traversal length
// against them; use New to normalise.
func (s Shot) Validate() error {
	if !geom.IsFinite(s.Origin) {
		return fmt.Errorf("shot %d: origin is not finite", s.ID)
	}
	if !geom.IsFinite(s.Direction) || r3.Norm(s.Direction) == 0 {
		return fmt.Errorf("shot %d: direction must be finite and non-zero", s.ID)
	}
	if n := r3.Norm(s.Direction); math.Abs(n-1) > UnitTolerance {
		return fmt.Errorf("shot %d: direction must be unit length, got norm %g", s.ID, n)
	}
	prev := 0.0
	for i, e := range s.Echoes {
		if math.IsNaN(e) || math.IsInf(e, 0) || e < 0 {
			return fmt.Errorf("shot %d: echo %d range %g is invalid", s.ID, i, e)
		}
		if e < prev {
			return fmt.Errorf("shot %d: echo ranges must be ascending", s.ID)
		}
		prev = e
	}
	if len(s.Classes) != 0 && len(s.Classes) != len(s.Echoes) {
		return fmt.Errorf("shot %d: %d classes for %d echoes", s.ID, len(s.Classes), len(s.Echoes))
	}
	return nil
}

// LastEcho returns the range of the last echo, or false when there is none.
func (s Shot) LastEcho() (float64, bool) {
	if len(s.Echoes) == 0 {
		return 0, false
	}
	return s.Echoes[len(s.Echoes)-1], true
}

// Ray returns the shot as an unbounded line segment.
func (s Shot) Ray() geom.LineSegment {
	return geom.LineSegment{Origin: s.Origin, Direction: s.Direction, Length: math.Inf(1)}
}

// EchoPoint returns the world position of echo i.
func (s Shot) EchoPoint(i int) geom.Vec {
	return r3.Add(s.Origin, r3.Scale(s.Echoes[i], s.Direction))
}
