package geom

import "math"

// Intersection describes where a ray meets a box face.
type Intersection struct {
	// Distance along the ray from its origin.
	Distance float64
	// Axis of the face that was hit.
	Axis int
	// Normal is the outward unit normal of the hit face.
	Normal Vec
}

// RayBox returns the nearest intersection of the ray (origin, dir) with the
// box using the slab method. When the origin is outside, the entry face is
// returned; when it is inside, the exit face. Axes where dir is zero are
// treated as parallel slabs: the ray misses unless the origin lies between
// the two planes. Intersections behind the origin are misses.
func RayBox(origin, dir Vec, box BoundingBox) (Intersection, bool) {
	tmin, tmax := math.Inf(-1), math.Inf(1)
	minAxis, maxAxis := -1, -1

	for a := AxisX; a <= AxisZ; a++ {
		o := Component(origin, a)
		d := Component(dir, a)
		lo, hi := Component(box.Min, a), Component(box.Max, a)
		if d == 0 {
			if o < lo || o > hi {
				return Intersection{}, false
			}
			continue
		}
		inv := 1 / d
		t1 := (lo - o) * inv
		t2 := (hi - o) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin, minAxis = t1, a
		}
		if t2 < tmax {
			tmax, maxAxis = t2, a
		}
	}

	if tmax < 0 || tmin > tmax || (minAxis < 0 && maxAxis < 0) {
		return Intersection{}, false
	}

	if tmin >= 0 {
		// entering: outward normal points against the direction
		s := math.Copysign(1, Component(dir, minAxis))
		return Intersection{
			Distance: tmin,
			Axis:     minAxis,
			Normal:   WithComponent(Vec{}, minAxis, -s),
		}, true
	}
	s := math.Copysign(1, Component(dir, maxAxis))
	return Intersection{
		Distance: tmax,
		Axis:     maxAxis,
		Normal:   WithComponent(Vec{}, maxAxis, s),
	}, true
}
