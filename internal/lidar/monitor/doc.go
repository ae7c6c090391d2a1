// Package monitor renders finalised voxel grids for inspection: PNG
// vertical profiles with gonum/plot and per-layer HTML heatmaps with
// go-echarts.
package monitor
