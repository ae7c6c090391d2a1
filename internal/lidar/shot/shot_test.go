package shot

import (
	"io"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canopy.report/internal/lidar/geom"
)

func TestNew_NormalisesDirection(t *testing.T) {
	s := New(geom.Vec{}, geom.Vec{X: 3, Z: -4}, 1, 2)
	assert.InDelta(t, 0.6, s.Direction.X, 1e-12)
	assert.InDelta(t, -0.8, s.Direction.Z, 1e-12)
	assert.Equal(t, []float64{1, 2}, s.Echoes)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		shot    Shot
		wantErr string
	}{
		{"ok", New(geom.Vec{}, geom.Vec{Z: -1}, 1, 2), ""},
		{"no echoes", New(geom.Vec{}, geom.Vec{Z: -1}), ""},
		{"nan origin", New(geom.Vec{X: math.NaN()}, geom.Vec{Z: -1}), "origin"},
		{"zero direction", Shot{Direction: geom.Vec{}}, "direction"},
		{"long direction", Shot{Direction: geom.Vec{Z: -2}, Echoes: []float64{4}}, "unit length"},
		{"short direction", Shot{Direction: geom.Vec{X: 0.5, Y: 0.5}}, "unit length"},
		{"unit within tolerance", Shot{Direction: geom.Vec{Z: -(1 + UnitTolerance/2)}}, ""},
		{"negative echo", New(geom.Vec{}, geom.Vec{Z: -1}, -1), "invalid"},
		{"unordered echoes", New(geom.Vec{}, geom.Vec{Z: -1}, 3, 2), "ascending"},
		{"class mismatch", Shot{Direction: geom.Vec{Z: -1}, Echoes: []float64{1}, Classes: []int{1, 2}}, "classes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.shot.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLastEchoAndPoint(t *testing.T) {
	s := New(geom.Vec{X: 1, Y: 1, Z: 10}, geom.Vec{Z: -1}, 2, 5)
	last, ok := s.LastEcho()
	require.True(t, ok)
	assert.Equal(t, 5.0, last)
	assert.Equal(t, geom.Vec{X: 1, Y: 1, Z: 8}, s.EchoPoint(0))

	_, ok = New(geom.Vec{}, geom.Vec{Z: -1}).LastEcho()
	assert.False(t, ok)
}

func TestReader(t *testing.T) {
	in := `# x y z dx dy dz n ranges classes
0.5 0.5 9.5 0 0 -1 1 4

1 2 3 0 0 -2 2 1.5 2.5 5 2
4 4 4 1 0 0 0
`
	got, err := Collect(NewReader(strings.NewReader(in)))
	require.NoError(t, err)

	want := []Shot{
		{ID: 0, Origin: geom.Vec{X: 0.5, Y: 0.5, Z: 9.5}, Direction: geom.Vec{Z: -1}, Echoes: []float64{4}},
		{ID: 1, Origin: geom.Vec{X: 1, Y: 2, Z: 3}, Direction: geom.Vec{Z: -1}, Echoes: []float64{1.5, 2.5}, Classes: []int{5, 2}},
		{ID: 2, Origin: geom.Vec{X: 4, Y: 4, Z: 4}, Direction: geom.Vec{X: 1}, Echoes: []float64{}},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("shots mismatch (-want +got):\n%s", diff)
	}
}

func TestReader_Errors(t *testing.T) {
	for _, in := range []string{
		"1 2 3 0 0 -1",
		"1 2 3 0 0 -1 2 1",
		"1 2 x 0 0 -1 0",
		"1 2 3 0 0 0 0",
		"1 2 3 0 0 -1 2 3 1",
	} {
		_, err := NewReader(strings.NewReader(in)).Next()
		require.Error(t, err, in)
		assert.Contains(t, err.Error(), "line 1")
	}
}

func TestSliceSource(t *testing.T) {
	src := NewSliceSource([]Shot{{ID: 7}, {ID: 8}})
	a, err := src.Next()
	require.NoError(t, err)
	b, err := src.Next()
	require.NoError(t, err)
	_, err = src.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, []int64{7, 8}, []int64{a.ID, b.ID})
}

func TestApplyEchoFilters(t *testing.T) {
	s := Shot{
		Direction: geom.Vec{Z: -1},
		Echoes:    []float64{1, 2, 3, 4},
		Classes:   []int{5, GroundClass, 4, GroundClass},
	}
	out := ApplyEchoFilters(s, NewClassFilter(GroundClass))
	assert.Equal(t, []float64{1, 3}, out.Echoes)
	assert.Equal(t, []int{5, 4}, out.Classes)
	assert.Len(t, s.Echoes, 4, "input must not be modified")

	nearOnly := EchoFilterFunc(func(s Shot, i int) bool { return s.Echoes[i] < 2.5 })
	out = ApplyEchoFilters(s, nearOnly, NewClassFilter(GroundClass))
	assert.Equal(t, []float64{1}, out.Echoes)

	unclassified := Shot{Echoes: []float64{1, 2}}
	assert.Equal(t, unclassified.Echoes, ApplyEchoFilters(unclassified, NewClassFilter(GroundClass)).Echoes)
}

func TestZenithFilter(t *testing.T) {
	f := ZenithFilter{MaxZenith: 30}
	assert.True(t, f.AcceptShot(New(geom.Vec{}, geom.Vec{Z: -1})))
	assert.True(t, f.AcceptShot(New(geom.Vec{}, geom.Vec{X: 1, Z: -2})), "about 26.6 degrees")
	assert.False(t, f.AcceptShot(New(geom.Vec{}, geom.Vec{X: 1, Z: -1})), "45 degrees")
	assert.False(t, f.AcceptShot(New(geom.Vec{}, geom.Vec{Z: 1})), "pointing up")

	var even ShotFilter = ShotFilterFunc(func(s Shot) bool { return s.ID%2 == 0 })
	assert.True(t, even.AcceptShot(Shot{ID: 4}))
	assert.False(t, even.AcceptShot(Shot{ID: 5}))
}
