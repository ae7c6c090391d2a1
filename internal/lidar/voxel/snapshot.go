package voxel

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"

	"github.com/banshee-data/canopy.report/internal/lidar/voxspace"
)

// EncodeSnapshot compresses the voxel arena using gob encoding and gzip.
func EncodeSnapshot(g *Grid) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(g.Voxels); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot restores a grid over space from a blob produced by
// EncodeSnapshot. The voxel count must match the space.
func DecodeSnapshot(space *voxspace.Space, blob []byte) (*Grid, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty grid blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var voxels []Voxel
	if err := gob.NewDecoder(gz).Decode(&voxels); err != nil {
		return nil, fmt.Errorf("failed to decode voxels: %w", err)
	}
	if len(voxels) != space.Len() {
		return nil, fmt.Errorf("snapshot has %d voxels, space %s needs %d", len(voxels), space, space.Len())
	}
	return &Grid{space: space, Voxels: voxels}, nil
}
