package voxspace

import (
	"fmt"
	"strings"
)

// Topology selects how the grid behaves at its horizontal (X and Y)
// boundaries. Z never wraps.
type Topology int

const (
	// FiniteBox stops traversal when a ray leaves the box.
	FiniteBox Topology = iota
	// ToricFinite wraps X and Y so the scene repeats periodically.
	ToricFinite
	// ToricInfinite wraps X and Y; kept distinct from ToricFinite so
	// consumers can tell an emulated infinite canopy from a tiled one.
	ToricInfinite
)

var topologyNames = map[Topology]string{
	FiniteBox:     "finite",
	ToricFinite:   "toric-finite",
	ToricInfinite: "toric-infinite",
}

func (t Topology) String() string {
	if s, ok := topologyNames[t]; ok {
		return s
	}
	return fmt.Sprintf("topology(%d)", int(t))
}

// IsToric reports whether X and Y wrap.
func (t Topology) IsToric() bool {
	return t == ToricFinite || t == ToricInfinite
}

// ParseTopology parses the names produced by String. The empty string
// selects FiniteBox.
func ParseTopology(s string) (Topology, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FiniteBox, nil
	}
	for t, name := range topologyNames {
		if name == s {
			return t, nil
		}
	}
	return FiniteBox, fmt.Errorf("unknown topology %q (want finite, toric-finite or toric-infinite)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Topology) MarshalText() ([]byte, error) {
	if _, ok := topologyNames[t]; !ok {
		return nil, fmt.Errorf("invalid topology %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Topology) UnmarshalText(b []byte) error {
	v, err := ParseTopology(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
