// Package sqlite persists voxelisation runs and their grids in SQLite.
//
// A run row records the grid geometry, the parameters and the shot
// counters of one voxelisation; the grid itself is stored alongside as a
// compressed snapshot blob. The schema is managed with embedded
// golang-migrate migrations.
package sqlite
