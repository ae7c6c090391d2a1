package voxel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the distribution of one field over a grid.
type Summary struct {
	Field  string
	Count  int // finite values
	NaN    int
	Inf    int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: n=%d nan=%d inf=%d min=%g max=%g mean=%g sd=%g",
		s.Field, s.Count, s.NaN, s.Inf, s.Min, s.Max, s.Mean, s.StdDev)
}

// Summarize computes a Summary of field f. Statistics are taken over the
// finite values only and are NaN when there are none.
func (g *Grid) Summarize(f Field) Summary {
	return Summarize(f.Name, g.Values(f))
}

// Summarize computes a Summary of values.
func Summarize(name string, values []float64) Summary {
	s := Summary{Field: name}
	finite := make([]float64, 0, len(values))
	for _, x := range values {
		switch {
		case math.IsNaN(x):
			s.NaN++
		case math.IsInf(x, 0):
			s.Inf++
		default:
			finite = append(finite, x)
		}
	}
	s.Count = len(finite)
	if s.Count == 0 {
		s.Min, s.Max, s.Mean, s.StdDev = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}
	s.Min = floats.Min(finite)
	s.Max = floats.Max(finite)
	if s.Count == 1 {
		s.Mean, s.StdDev = finite[0], 0
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(finite, nil)
	return s
}
