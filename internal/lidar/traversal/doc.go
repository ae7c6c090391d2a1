// Package traversal walks laser shots through a voxel space.
//
// Manager finds the first voxel a shot enters (GetFirstVoxel) and steps
// from one voxel to the next (CrossVoxel), wrapping laterally on toric
// topologies. Walk drives both and reports each voxel crossing as a
// Segment measured in distance from the shot origin.
package traversal
