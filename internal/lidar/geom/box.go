package geom

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// BoundingBox is an axis-aligned box given by its min and max corners.
type BoundingBox struct {
	Min Vec `json:"min"`
	Max Vec `json:"max"`
}

// NewBoundingBox builds a box from two opposite corners in any order.
func NewBoundingBox(a, b Vec) BoundingBox {
	return BoundingBox{
		Min: Vec{X: min(a.X, b.X), Y: min(a.Y, b.Y), Z: min(a.Z, b.Z)},
		Max: Vec{X: max(a.X, b.X), Y: max(a.Y, b.Y), Z: max(a.Z, b.Z)},
	}
}

// Size returns the extent of the box along each axis.
func (b BoundingBox) Size() Vec {
	return r3.Sub(b.Max, b.Min)
}

// Center returns the centre of the box.
func (b BoundingBox) Center() Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

// Contains reports whether p lies inside the box, faces included.
func (b BoundingBox) Contains(p Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Padded returns the box grown by margin on every face.
func (b BoundingBox) Padded(margin float64) BoundingBox {
	m := Vec{X: margin, Y: margin, Z: margin}
	return BoundingBox{Min: r3.Sub(b.Min, m), Max: r3.Add(b.Max, m)}
}

// Validate returns an error unless both corners are finite and Min is
// strictly below Max on every axis.
func (b BoundingBox) Validate() error {
	if !IsFinite(b.Min) || !IsFinite(b.Max) {
		return fmt.Errorf("bounding box corners must be finite, got min=%v max=%v", b.Min, b.Max)
	}
	for a := AxisX; a <= AxisZ; a++ {
		if Component(b.Min, a) >= Component(b.Max, a) {
			return fmt.Errorf("bounding box min must be below max on axis %d, got %g >= %g",
				a, Component(b.Min, a), Component(b.Max, a))
		}
	}
	return nil
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[(%g, %g, %g) - (%g, %g, %g)]", b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
}
