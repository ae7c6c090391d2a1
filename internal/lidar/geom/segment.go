package geom

import "gonum.org/v1/gonum/spatial/r3"

// LineSegment is a ray origin with a unit direction and a length. An
// unbounded ray has Length = +Inf.
type LineSegment struct {
	Origin    Vec
	Direction Vec
	Length    float64
}

// PointAt returns the point at distance t along the segment direction.
func (s LineSegment) PointAt(t float64) Vec {
	return r3.Add(s.Origin, r3.Scale(t, s.Direction))
}
