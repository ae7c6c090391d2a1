package voxel

import (
	"fmt"
	"math"
)

// DefaultMaxPAD is the clamp applied when FinalizeParams.MaxPAD is unset.
const DefaultMaxPAD = 3.0

// FinalizeParams controls PAD derivation.
type FinalizeParams struct {
	Acquisition Acquisition
	// MaxPAD clamps finite and infinite PAD values. Zero selects
	// DefaultMaxPAD.
	MaxPAD float64
}

func (p FinalizeParams) maxPAD() float64 {
	if p.MaxPAD > 0 {
		return p.MaxPAD
	}
	return DefaultMaxPAD
}

// Validate rejects negative or non-finite clamps.
func (p FinalizeParams) Validate() error {
	if p.MaxPAD < 0 || math.IsNaN(p.MaxPAD) || math.IsInf(p.MaxPAD, 0) {
		return fmt.Errorf("max PAD must be finite and non-negative, got %g", p.MaxPAD)
	}
	if p.Acquisition != ALS && p.Acquisition != TLS {
		return fmt.Errorf("unknown acquisition mode %d", p.Acquisition)
	}
	return nil
}

// Transmittance returns (entering-intercepted)/entering, or NaN when
// nothing entered.
func Transmittance(entering, intercepted float64) float64 {
	if entering == 0 {
		return math.NaN()
	}
	return (entering - intercepted) / entering
}

// UnclampedPAD applies the attenuation inversion
// ln(T) / (-0.5 * L^2). Negative or NaN transmittance and a zero or NaN
// mean path length give NaN; zero transmittance gives +Inf.
func UnclampedPAD(transmittance, meanPathLen float64) float64 {
	if math.IsNaN(transmittance) || transmittance < 0 {
		return math.NaN()
	}
	if math.IsNaN(meanPathLen) || meanPathLen == 0 {
		return math.NaN()
	}
	if transmittance == 0 {
		return math.Inf(1)
	}
	return math.Log(transmittance) / (-0.5 * meanPathLen * meanPathLen)
}

func clampPAD(pad, maxPAD float64) float64 {
	if math.IsNaN(pad) {
		return pad
	}
	return math.Min(math.Max(pad, 0), maxPAD)
}

// MeanPathLength returns the mean path length used by the inversion.
func (v *Voxel) MeanPathLength(a Acquisition) float64 {
	if a == TLS {
		return v.PathLenNoInterception / float64(max(v.NbSampling-v.NbEchos, 1))
	}
	return (v.PathLenExiting + v.PathLenNoInterception) / float64(max(v.NbSampling, 1))
}

// Finalize writes the derived fields from the accumulators. It reads no
// derived field, so repeated calls give identical results.
func (v *Voxel) Finalize(p FinalizeParams) {
	maxPAD := p.maxPAD()
	l := v.MeanPathLength(p.Acquisition)

	v.PadBeamFraction = clampPAD(UnclampedPAD(Transmittance(v.BeamFractionEntering, v.BeamFractionIntercepted), l), maxPAD)
	v.PadBeamSection = clampPAD(UnclampedPAD(Transmittance(v.BeamSectionEntering, v.BeamSectionIntercepted), l), maxPAD)

	if v.NbEchos > 0 {
		v.LMeanExiting = v.PathLenExiting / float64(v.NbEchos)
	} else {
		v.LMeanExiting = 0
	}
	if n := v.NbSampling - v.NbEchos; n > 0 {
		v.LMeanNoInterception = v.PathLenNoInterception / float64(n)
	} else {
		v.LMeanNoInterception = 0
	}
	if v.NbSampling > 0 {
		v.AngleMean = v.AngleSum / float64(v.NbSampling)
	} else {
		v.AngleMean = math.NaN()
	}
}

// Finalize derives every voxel's PAD and mean fields.
func (g *Grid) Finalize(p FinalizeParams) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	var nan, clamped int
	maxPAD := p.maxPAD()
	for i := range g.Voxels {
		v := &g.Voxels[i]
		v.Finalize(p)
		if math.IsNaN(v.PadBeamFraction) {
			nan++
		} else if v.PadBeamFraction == maxPAD {
			clamped++
		}
	}
	diagf("finalized %d voxels (%s, max PAD %g): %d NaN, %d at clamp", len(g.Voxels), p.Acquisition, maxPAD, nan, clamped)
	return nil
}
