// Package voxspace describes the geometry of a voxel grid: its bounding box,
// per-axis splitting and resolution, and horizontal topology. It converts
// between world coordinates and integer cell indices and between indices
// and the flat offsets used by the voxel arena.
//
// A Space is immutable once built and safe for concurrent use.
package voxspace
