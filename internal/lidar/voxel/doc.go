// Package voxel holds the per-cell accumulators of a voxel grid and turns
// them into Plant Area Density estimates.
//
// A Grid is a dense arena of Voxel values addressed by the linear offset of
// a voxspace.Space. Accumulation is purely additive through Voxel.Add;
// Finalize derives the PAD and mean-length fields and may be repeated.
// Grids are persisted either as the tab-separated voxel text file
// (WriteFile/ReadFile) or as a compressed snapshot (EncodeSnapshot).
//
// Grid is not safe for concurrent mutation; callers serialise updates.
package voxel
