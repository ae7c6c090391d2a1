// Package geom holds the bounding geometry primitives used by voxel
// traversal: points and directions, axis-aligned boxes, line segments and
// the ray-box slab intersection test.
//
// Vectors are gonum r3.Vec values so callers can use the r3 helpers
// directly.
package geom
