package monitor

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/lidar/voxel"
	"github.com/banshee-data/canopy.report/internal/lidar/voxspace"
)

// Profile plot size.
const (
	ProfileWidth  = 6 * vg.Inch
	ProfileHeight = 8 * vg.Inch
)

// ProfilePoints returns one (value, height) point per layer of field f,
// using the layer's mean over finite voxels. Layers with no finite value
// are skipped.
func ProfilePoints(g *voxel.Grid, f voxel.Field) plotter.XYs {
	means := g.Profile(f)
	pts := make(plotter.XYs, 0, len(means))
	for k, m := range means {
		if math.IsNaN(m) {
			continue
		}
		z := g.Space().CellCenter(voxspace.Index{K: k}).Z
		pts = append(pts, plotter.XY{X: m, Y: z})
	}
	return pts
}

// NewProfilePlot builds a vertical profile of each field in fields.
func NewProfilePlot(g *voxel.Grid, fields ...voxel.Field) (*plot.Plot, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to plot")
	}

	sp := g.Space().Splitting()
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Vertical profile %dx%dx%d", sp.Nx, sp.Ny, sp.Nz)
	p.X.Label.Text = "Layer mean"
	p.Y.Label.Text = "Height (m)"

	colors := generateColors(len(fields))
	for i, f := range fields {
		pts := ProfilePoints(g, f)
		if len(pts) == 0 {
			opsf("profile %s: no finite layers", f.Name)
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		points.Color = colors[i]
		points.Radius = vg.Points(2)
		p.Add(line, points)
		p.Legend.Add(f.Name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	p.Add(plotter.NewGrid())
	return p, nil
}

// PlotProfile writes a PNG vertical profile of fields to path on fsys.
func PlotProfile(fsys fsutil.FileSystem, path string, g *voxel.Grid, fields ...voxel.Field) error {
	p, err := NewProfilePlot(g, fields...)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(ProfileWidth, ProfileHeight, "png")
	if err != nil {
		return fmt.Errorf("render profile: %w", err)
	}

	out, err := fsutil.CreateAll(fsys, path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := wt.WriteTo(out); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	diagf("wrote profile %s (%d fields)", path, len(fields))
	return nil
}

// generateColors creates a palette of n distinct hues.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL in [0,1] to 8-bit RGB.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
