package shot

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/canopy.report/internal/lidar/geom"
)

// Source yields shots one at a time. Next returns io.EOF after the last
// shot. Sources are not required to be safe for concurrent use.
type Source interface {
	Next() (Shot, error)
}

// SliceSource serves shots from memory.
type SliceSource struct {
	shots []Shot
	pos   int
}

// NewSliceSource returns a Source over shots.
func NewSliceSource(shots []Shot) *SliceSource {
	return &SliceSource{shots: shots}
}

// Next implements Source.
func (s *SliceSource) Next() (Shot, error) {
	if s.pos >= len(s.shots) {
		return Shot{}, io.EOF
	}
	sh := s.shots[s.pos]
	s.pos++
	return sh, nil
}

// Reader decodes the whitespace shot text format:
//
//	x y z dx dy dz n r1 ... rn [c1 ... cn]
//
// One shot per line. n is the echo count, r the echo ranges and the
// optional c the per-echo classifications. Blank lines and lines starting
// with '#' are skipped.
type Reader struct {
	sc     *bufio.Scanner
	line   int
	nextID int64
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Reader{sc: sc}
}

// Next implements Source.
func (r *Reader) Next() (Shot, error) {
	for r.sc.Scan() {
		r.line++
		text := strings.TrimSpace(r.sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		s, err := parseShotLine(text)
		if err != nil {
			return Shot{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		s.ID = r.nextID
		r.nextID++
		if err := s.Validate(); err != nil {
			return Shot{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return s, nil
	}
	if err := r.sc.Err(); err != nil {
		return Shot{}, fmt.Errorf("read shots: %w", err)
	}
	return Shot{}, io.EOF
}

func parseShotLine(text string) (Shot, error) {
	fields := strings.Fields(text)
	if len(fields) < 7 {
		return Shot{}, fmt.Errorf("expected at least 7 fields, got %d", len(fields))
	}
	var v [6]float64
	for i := range v {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return Shot{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		v[i] = f
	}
	n, err := strconv.Atoi(fields[6])
	if err != nil || n < 0 {
		return Shot{}, fmt.Errorf("invalid echo count %q", fields[6])
	}
	rest := fields[7:]
	if len(rest) != n && len(rest) != 2*n {
		return Shot{}, fmt.Errorf("echo count %d does not match %d trailing fields", n, len(rest))
	}
	echoes := make([]float64, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(rest[i], 64)
		if err != nil {
			return Shot{}, fmt.Errorf("echo %d: %w", i, err)
		}
		echoes[i] = f
	}
	s := New(geom.Vec{X: v[0], Y: v[1], Z: v[2]}, geom.Vec{X: v[3], Y: v[4], Z: v[5]}, echoes...)
	if len(rest) == 2*n && n > 0 {
		s.Classes = make([]int, n)
		for i := 0; i < n; i++ {
			c, err := strconv.Atoi(rest[n+i])
			if err != nil {
				return Shot{}, fmt.Errorf("class %d: %w", i, err)
			}
			s.Classes[i] = c
		}
	}
	return s, nil
}

// Collect drains src into a slice.
func Collect(src Source) ([]Shot, error) {
	var out []Shot
	for {
		s, err := src.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}
