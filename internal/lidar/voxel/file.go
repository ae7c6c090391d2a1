package voxel

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/lidar/geom"
	"github.com/banshee-data/canopy.report/internal/lidar/voxspace"
)

const fileMagic = "VOXEL SPACE"

// Write serialises g in the voxel text format: a header block followed by
// one row per voxel, i-major then j then k with k varying fastest.
func Write(w io.Writer, g *Grid, p FinalizeParams) error {
	bw := bufio.NewWriter(w)
	sp := g.Space()
	box := sp.BoundingBox()
	split := sp.Splitting()

	fmt.Fprintln(bw, fileMagic)
	fmt.Fprintf(bw, "#min_corner: %s %s %s\n", ff(box.Min.X), ff(box.Min.Y), ff(box.Min.Z))
	fmt.Fprintf(bw, "#max_corner: %s %s %s\n", ff(box.Max.X), ff(box.Max.Y), ff(box.Max.Z))
	fmt.Fprintf(bw, "#split: %d %d %d\n", split.Nx, split.Ny, split.Nz)
	fmt.Fprintf(bw, "#type: %s #res: %s #MAX_PAD: %s\n", p.Acquisition, ff(sp.Resolution().X), ff(p.maxPAD()))

	names := make([]string, 0, len(Fields)+3)
	names = append(names, "i", "j", "k")
	for _, f := range Fields {
		names = append(names, f.Name)
	}
	fmt.Fprintln(bw, strings.Join(names, " "))

	row := make([]string, len(names))
	for i := 0; i < split.Nx; i++ {
		for j := 0; j < split.Ny; j++ {
			for k := 0; k < split.Nz; k++ {
				v := g.At(voxspace.Index{I: i, J: j, K: k})
				row[0], row[1], row[2] = strconv.Itoa(i), strconv.Itoa(j), strconv.Itoa(k)
				for n, f := range Fields {
					if f.Integer {
						row[3+n] = strconv.FormatInt(int64(f.Get(v)), 10)
					} else {
						row[3+n] = ff(f.Get(v))
					}
				}
				if _, err := fmt.Fprintln(bw, strings.Join(row, " ")); err != nil {
					return fmt.Errorf("write voxel row: %w", err)
				}
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush voxel file: %w", err)
	}
	return nil
}

// WriteFile writes g to path on fsys.
func WriteFile(fsys fsutil.FileSystem, path string, g *Grid, p FinalizeParams) error {
	f, err := fsutil.CreateAll(fsys, path)
	if err != nil {
		return fmt.Errorf("create voxel file: %w", err)
	}
	if err := Write(f, g, p); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close voxel file: %w", err)
	}
	diagf("wrote %d voxels to %s", g.Len(), path)
	return nil
}

func ff(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) }

// Read parses a voxel text file. The grid is built over a finite box
// topology; callers that need another topology rebuild the space from the
// returned corners. Columns are matched by header name, so files with a
// subset of fields load with the missing fields left at zero.
func Read(r io.Reader) (*Grid, FinalizeParams, error) {
	var p FinalizeParams
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	next := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		line++
		return strings.TrimSpace(sc.Text()), true
	}

	if s, ok := next(); !ok || s != fileMagic {
		return nil, p, fmt.Errorf("voxel file: missing %q header", fileMagic)
	}

	var minC, maxC geom.Vec
	var split voxspace.Splitting
	for _, want := range []string{"#min_corner:", "#max_corner:", "#split:"} {
		s, ok := next()
		if !ok {
			return nil, p, fmt.Errorf("voxel file: truncated header")
		}
		fields := strings.Fields(s)
		if len(fields) != 4 || fields[0] != want {
			return nil, p, fmt.Errorf("voxel file line %d: expected %s with 3 values", line, want)
		}
		var vals [3]float64
		for n := range vals {
			x, err := strconv.ParseFloat(fields[n+1], 64)
			if err != nil {
				return nil, p, fmt.Errorf("voxel file line %d: %w", line, err)
			}
			vals[n] = x
		}
		switch want {
		case "#min_corner:":
			minC = geom.Vec{X: vals[0], Y: vals[1], Z: vals[2]}
		case "#max_corner:":
			maxC = geom.Vec{X: vals[0], Y: vals[1], Z: vals[2]}
		default:
			split = voxspace.Splitting{Nx: int(vals[0]), Ny: int(vals[1]), Nz: int(vals[2])}
		}
	}

	s, ok := next()
	if !ok {
		return nil, p, fmt.Errorf("voxel file: truncated header")
	}
	if err := parseTypeLine(s, &p); err != nil {
		return nil, p, fmt.Errorf("voxel file line %d: %w", line, err)
	}

	space, err := voxspace.New(geom.BoundingBox{Min: minC, Max: maxC}, split, voxspace.FiniteBox)
	if err != nil {
		return nil, p, fmt.Errorf("voxel file: %w", err)
	}
	g := NewGrid(space)

	s, ok = next()
	if !ok {
		return nil, p, fmt.Errorf("voxel file: missing column header")
	}
	cols := strings.Fields(s)
	if len(cols) < 3 || cols[0] != "i" || cols[1] != "j" || cols[2] != "k" {
		return nil, p, fmt.Errorf("voxel file line %d: column header must start with i j k", line)
	}
	setters := make([]func(*Voxel, float64), len(cols)-3)
	for n, name := range cols[3:] {
		if f, err := FieldByName(name); err == nil {
			setters[n] = f.Set
		} else {
			diagf("voxel file: ignoring unknown column %q", name)
		}
	}

	rows := 0
	for {
		s, ok := next()
		if !ok {
			break
		}
		if s == "" {
			continue
		}
		fields := strings.Fields(s)
		if len(fields) != len(cols) {
			return nil, p, fmt.Errorf("voxel file line %d: %d values for %d columns", line, len(fields), len(cols))
		}
		var ijk [3]int
		for n := range ijk {
			x, err := strconv.Atoi(fields[n])
			if err != nil {
				return nil, p, fmt.Errorf("voxel file line %d: %w", line, err)
			}
			ijk[n] = x
		}
		idx := voxspace.Index{I: ijk[0], J: ijk[1], K: ijk[2]}
		if !space.Contains(idx) {
			return nil, p, fmt.Errorf("voxel file line %d: index %s outside %s", line, idx, space)
		}
		v := g.At(idx)
		for n, set := range setters {
			if set == nil {
				continue
			}
			x, err := strconv.ParseFloat(fields[n+3], 64)
			if err != nil {
				return nil, p, fmt.Errorf("voxel file line %d: column %s: %w", line, cols[n+3], err)
			}
			set(v, x)
		}
		rows++
	}
	if err := sc.Err(); err != nil {
		return nil, p, fmt.Errorf("read voxel file: %w", err)
	}
	if rows != space.Len() {
		opsf("voxel file has %d rows for %d voxels", rows, space.Len())
	}
	return g, p, nil
}

func parseTypeLine(s string, p *FinalizeParams) error {
	fields := strings.Fields(s)
	for n := 0; n+1 < len(fields); n += 2 {
		key, val := fields[n], fields[n+1]
		switch key {
		case "#type:":
			a, err := ParseAcquisition(val)
			if err != nil {
				return err
			}
			p.Acquisition = a
		case "#MAX_PAD:":
			x, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("MAX_PAD: %w", err)
			}
			p.MaxPAD = x
		case "#res:":
			// derived from corners and split
		default:
			return fmt.Errorf("unexpected header key %q", key)
		}
	}
	return nil
}

// ReadFile reads a voxel text file from path on fsys.
func ReadFile(fsys fsutil.FileSystem, path string) (*Grid, FinalizeParams, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, FinalizeParams{}, fmt.Errorf("open voxel file: %w", err)
	}
	defer f.Close()
	return Read(f)
}
