// Package shot defines the laser shot consumed by voxelisation: an origin,
// a unit direction and the ordered ranges of its echoes.
//
// Shot producers implement Source. This package ships an in-memory
// SliceSource and a Reader for a plain whitespace text format; vendor
// scan formats are decoded elsewhere and fed in through Source.
package shot
