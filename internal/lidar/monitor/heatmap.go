package monitor

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/canopy.report/internal/lidar/voxel"
	"github.com/banshee-data/canopy.report/internal/lidar/voxspace"
)

// viridis is the visual map palette shared by every heatmap.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// LayerHeatmapData returns the finite values of field f in layer k as
// (i, j, value) cells, with the value range they span. Non-finite voxels
// are left out so they render as gaps.
func LayerHeatmapData(g *voxel.Grid, f voxel.Field, k int) ([]opts.HeatMapData, float64, float64, error) {
	space := g.Space()
	sp := space.Splitting()
	if k < 0 || k >= sp.Nz {
		return nil, 0, 0, fmt.Errorf("layer %d out of range [0, %d)", k, sp.Nz)
	}

	data := make([]opts.HeatMapData, 0, sp.Nx*sp.Ny)
	lo, hi := math.Inf(1), math.Inf(-1)
	for j := 0; j < sp.Ny; j++ {
		for i := 0; i < sp.Nx; i++ {
			v := f.Get(g.At(voxspace.Index{I: i, J: j, K: k}))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			data = append(data, opts.HeatMapData{Value: [3]interface{}{i, j, v}})
		}
	}
	if len(data) == 0 {
		lo, hi = 0, 0
	}
	tracef("layer %d %s: %d finite cells in [%g, %g]", k, f.Name, len(data), lo, hi)
	return data, lo, hi, nil
}

// NewLayerHeatmap builds a heatmap of field f over the i/j cells of
// layer k.
func NewLayerHeatmap(g *voxel.Grid, f voxel.Field, k int) (*charts.HeatMap, error) {
	data, lo, hi, err := LayerHeatmapData(g, f, k)
	if err != nil {
		return nil, err
	}
	if hi <= lo {
		hi = lo + 1
	}

	space := g.Space()
	sp := space.Splitting()
	xs := make([]string, sp.Nx)
	for i := range xs {
		xs[i] = strconv.Itoa(i)
	}
	ys := make([]string, sp.Ny)
	for j := range ys {
		ys[j] = strconv.Itoa(j)
	}
	z := space.CellCenter(voxspace.Index{K: k}).Z

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Voxel layer", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s layer %d", f.Name, k), Subtitle: fmt.Sprintf("z=%.3g m cells=%d", z, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xs, Name: "i", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "j", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.AddSeries(f.Name, data)
	return hm, nil
}

// RenderLayerHeatmap writes an HTML heatmap of field f in layer k to w.
func RenderLayerHeatmap(w io.Writer, g *voxel.Grid, f voxel.Field, k int) error {
	hm, err := NewLayerHeatmap(g, f, k)
	if err != nil {
		return err
	}
	if err := hm.Render(w); err != nil {
		return fmt.Errorf("failed to render heatmap: %w", err)
	}
	return nil
}
