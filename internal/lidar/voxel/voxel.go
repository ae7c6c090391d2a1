package voxel

import (
	"fmt"
	"strings"
)

// Acquisition selects the mean path length convention used by Finalize.
type Acquisition int

const (
	// ALS is airborne scanning: every sampling contributes to the mean
	// path length.
	ALS Acquisition = iota
	// TLS is terrestrial scanning: only samplings without interception
	// contribute.
	TLS
)

func (a Acquisition) String() string {
	if a == TLS {
		return "TLS"
	}
	return "ALS"
}

// ParseAcquisition accepts "als" or "tls" in any case. Empty means ALS.
func ParseAcquisition(s string) (Acquisition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "als":
		return ALS, nil
	case "tls":
		return TLS, nil
	}
	return ALS, fmt.Errorf("unknown acquisition mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (a Acquisition) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(a.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Acquisition) UnmarshalText(b []byte) error {
	v, err := ParseAcquisition(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Voxel is the accumulator for one grid cell. The first block of fields
// only grows during accumulation; the second is written by Finalize.
type Voxel struct {
	NbSampling int64
	NbOutgoing int64
	NbEchos    int64

	PathLenNoInterception float64
	PathLenExiting        float64

	BeamFractionEntering    float64
	BeamFractionIntercepted float64
	BeamSectionEntering     float64
	BeamSectionIntercepted  float64

	// AngleSum is the sum of shot zenith angles in degrees.
	AngleSum float64

	PadBeamFraction     float64
	PadBeamSection      float64
	LMeanExiting        float64
	LMeanNoInterception float64
	AngleMean           float64
}

// Sample is one contribution of a shot to a voxel: a piece of path inside
// the cell that ends either at an echo or at the end of the piece.
type Sample struct {
	// Length of the piece.
	Length float64
	// Intercepted is true when the piece ends at an echo.
	Intercepted bool
	// Outgoing is true when the piece reached the voxel exit.
	Outgoing bool
	// Weight is the residual beam fraction entering the piece.
	Weight float64
	// EchoWeight is the beam fraction intercepted by the echo.
	EchoWeight float64
	// Section is the beam cross-section area at the piece midpoint.
	Section float64
	// Zenith angle of the shot in degrees.
	Zenith float64
}

// Add accumulates s.
func (v *Voxel) Add(s Sample) {
	v.NbSampling++
	v.BeamFractionEntering += s.Weight
	v.BeamSectionEntering += s.Section
	v.AngleSum += s.Zenith
	if s.Intercepted {
		v.NbEchos++
		v.BeamFractionIntercepted += s.EchoWeight
		v.BeamSectionIntercepted += s.Section
		v.PathLenExiting += s.Length
		return
	}
	v.PathLenNoInterception += s.Length
	if s.Outgoing {
		v.NbOutgoing++
	}
}

// Merge adds the accumulators of o into v. Derived fields are left alone.
func (v *Voxel) Merge(o *Voxel) {
	v.NbSampling += o.NbSampling
	v.NbOutgoing += o.NbOutgoing
	v.NbEchos += o.NbEchos
	v.PathLenNoInterception += o.PathLenNoInterception
	v.PathLenExiting += o.PathLenExiting
	v.BeamFractionEntering += o.BeamFractionEntering
	v.BeamFractionIntercepted += o.BeamFractionIntercepted
	v.BeamSectionEntering += o.BeamSectionEntering
	v.BeamSectionIntercepted += o.BeamSectionIntercepted
	v.AngleSum += o.AngleSum
}

// Sampled reports whether any shot reached the voxel.
func (v *Voxel) Sampled() bool { return v.NbSampling > 0 }
