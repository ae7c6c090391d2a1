package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec is a point or a direction in world space.
type Vec = r3.Vec

// Axes in component order.
const (
	AxisX = 0
	AxisY = 1
	AxisZ = 2
)

// Component returns the a-th component of v (0=X, 1=Y, 2=Z).
func Component(v Vec, a int) float64 {
	switch a {
	case AxisX:
		return v.X
	case AxisY:
		return v.Y
	default:
		return v.Z
	}
}

// WithComponent returns v with its a-th component replaced by x.
func WithComponent(v Vec, a int, x float64) Vec {
	switch a {
	case AxisX:
		v.X = x
	case AxisY:
		v.Y = x
	default:
		v.Z = x
	}
	return v
}

// IsFinite reports whether every component of v is a finite number.
func IsFinite(v Vec) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// ZenithAngle returns the angle in degrees between dir and the downward
// vertical. A nadir-looking airborne shot has a zenith angle of 0.
func ZenithAngle(dir Vec) float64 {
	n := r3.Norm(dir)
	if n == 0 {
		return math.NaN()
	}
	c := -dir.Z / n
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c) * 180 / math.Pi
}
