package voxel

import (
	"fmt"
	"math"
)

// Field describes one serialised voxel attribute.
type Field struct {
	Name string
	// Integer fields are written without a fractional part.
	Integer bool
	Get     func(v *Voxel) float64
	Set     func(v *Voxel, x float64)
}

// Fields is the fixed column order of the voxel file and of every field
// based export. Accumulators come first, derived values last.
var Fields = []Field{
	{Name: "PadBF", Get: func(v *Voxel) float64 { return v.PadBeamFraction }, Set: func(v *Voxel, x float64) { v.PadBeamFraction = x }},
	{Name: "PadBS", Get: func(v *Voxel) float64 { return v.PadBeamSection }, Set: func(v *Voxel, x float64) { v.PadBeamSection = x }},
	{Name: "BFEntering", Get: func(v *Voxel) float64 { return v.BeamFractionEntering }, Set: func(v *Voxel, x float64) { v.BeamFractionEntering = x }},
	{Name: "BFIntercepted", Get: func(v *Voxel) float64 { return v.BeamFractionIntercepted }, Set: func(v *Voxel, x float64) { v.BeamFractionIntercepted = x }},
	{Name: "BSEntering", Get: func(v *Voxel) float64 { return v.BeamSectionEntering }, Set: func(v *Voxel, x float64) { v.BeamSectionEntering = x }},
	{Name: "BSIntercepted", Get: func(v *Voxel) float64 { return v.BeamSectionIntercepted }, Set: func(v *Voxel, x float64) { v.BeamSectionIntercepted = x }},
	{Name: "nbSampling", Integer: true, Get: func(v *Voxel) float64 { return float64(v.NbSampling) }, Set: func(v *Voxel, x float64) { v.NbSampling = int64(x) }},
	{Name: "nbEchos", Integer: true, Get: func(v *Voxel) float64 { return float64(v.NbEchos) }, Set: func(v *Voxel, x float64) { v.NbEchos = int64(x) }},
	{Name: "nbOutgoing", Integer: true, Get: func(v *Voxel) float64 { return float64(v.NbOutgoing) }, Set: func(v *Voxel, x float64) { v.NbOutgoing = int64(x) }},
	{Name: "lgNoInterception", Get: func(v *Voxel) float64 { return v.PathLenNoInterception }, Set: func(v *Voxel, x float64) { v.PathLenNoInterception = x }},
	{Name: "lgExiting", Get: func(v *Voxel) float64 { return v.PathLenExiting }, Set: func(v *Voxel, x float64) { v.PathLenExiting = x }},
	{Name: "angleSum", Get: func(v *Voxel) float64 { return v.AngleSum }, Set: func(v *Voxel, x float64) { v.AngleSum = x }},
	{Name: "lMeanExiting", Get: func(v *Voxel) float64 { return v.LMeanExiting }, Set: func(v *Voxel, x float64) { v.LMeanExiting = x }},
	{Name: "lMeanNoInterception", Get: func(v *Voxel) float64 { return v.LMeanNoInterception }, Set: func(v *Voxel, x float64) { v.LMeanNoInterception = x }},
	{Name: "angleMean", Get: func(v *Voxel) float64 { return v.AngleMean }, Set: func(v *Voxel, x float64) { v.AngleMean = x }},
}

// FieldByName returns the field called name.
func FieldByName(name string) (Field, error) {
	for _, f := range Fields {
		if f.Name == name {
			return f, nil
		}
	}
	return Field{}, fmt.Errorf("unknown voxel field %q", name)
}

// Values returns field f of every voxel in arena order.
func (g *Grid) Values(f Field) []float64 {
	out := make([]float64, len(g.Voxels))
	for i := range g.Voxels {
		out[i] = f.Get(&g.Voxels[i])
	}
	return out
}

// Profile returns the mean of field f per layer k, ignoring NaN and
// infinite values. Layers without a finite value are NaN.
func (g *Grid) Profile(f Field) []float64 {
	sp := g.space.Splitting()
	layer := sp.Nx * sp.Ny
	out := make([]float64, sp.Nz)
	for k := 0; k < sp.Nz; k++ {
		sum, n := 0.0, 0
		for _, v := range g.Voxels[k*layer : (k+1)*layer] {
			x := f.Get(&v)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				continue
			}
			sum += x
			n++
		}
		if n == 0 {
			out[k] = math.NaN()
		} else {
			out[k] = sum / float64(n)
		}
	}
	return out
}
