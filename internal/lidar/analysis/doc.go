// Package analysis drives voxelisation: it traces shots through a voxel
// space, turns each traversal into per-voxel samples and accumulates them
// into a voxel.Grid, then finalises PAD once every shot has been applied.
//
// Analyzer.Run fans shots out to a pool of workers. Each worker traces a
// shot into a local buffer and applies it under sharded per-voxel locks;
// Finalize waits for accumulation to stop before deriving PAD.
package analysis
