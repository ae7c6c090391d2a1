package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/canopy.report/internal/lidar/shot"
	"github.com/banshee-data/canopy.report/internal/lidar/traversal"
	"github.com/banshee-data/canopy.report/internal/lidar/voxel"
	"github.com/banshee-data/canopy.report/internal/lidar/voxspace"
	"github.com/banshee-data/canopy.report/internal/timeutil"
)

// ErrIncomplete is returned by Finalize after a run that was cancelled or
// aborted before consuming its whole source.
var ErrIncomplete = errors.New("analysis: accumulation incomplete")

// DefaultProgressEvery is the progress interval used when none is set.
const DefaultProgressEvery = 100000

// Stats counts shots seen by an Analyzer since the last reset.
type Stats struct {
	// Read is the number of shots taken from sources.
	Read int64
	// Processed shots entered the grid.
	Processed int64
	// Missed shots never reached the grid.
	Missed int64
	// Rejected shots failed validation.
	Rejected int64
	// Filtered shots were dropped by a shot filter.
	Filtered int64
}

// Progress is reported to RunOptions.Progress while a run is going.
type Progress struct {
	Stats
	Elapsed time.Duration
}

// RunOptions control one call to Run.
type RunOptions struct {
	// Workers is the number of tracing goroutines; 0 means one per CPU.
	Workers int
	// Progress, when set, is called every ProgressEvery shots from worker
	// goroutines. It must be safe for concurrent use.
	Progress      func(Progress)
	ProgressEvery int64
	// Reset zeroes the grid and the counters before accumulating. When
	// false the run adds to previous results.
	Reset bool
}

// FinalizeOptions control Finalize.
type FinalizeOptions struct {
	// AllowPartial finalises even after an incomplete run.
	AllowPartial bool
}

// Analyzer accumulates shots into a voxel grid.
type Analyzer struct {
	params Params
	tracer *tracer
	grid   *voxel.Grid
	clock  timeutil.Clock

	// mu is held shared while samples are applied and exclusively while
	// the grid is reset or finalised.
	mu    sync.RWMutex
	locks shardLocks

	read, processed, missed, rejected, filtered atomic.Int64
	incomplete                                  atomic.Bool

	shotFilters []shot.ShotFilter
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock replaces the clock used for progress timing.
func WithClock(c timeutil.Clock) Option {
	return func(a *Analyzer) { a.clock = c }
}

// WithEchoFilter adds an echo filter applied before tracing, after the
// classification filter built from Params.DiscardClasses.
func WithEchoFilter(f shot.EchoFilter) Option {
	return func(a *Analyzer) { a.tracer.filters = append(a.tracer.filters, f) }
}

// WithShotFilter adds a filter deciding which valid shots are traced.
// Dropped shots are counted in Stats.Filtered.
func WithShotFilter(f shot.ShotFilter) Option {
	return func(a *Analyzer) { a.shotFilters = append(a.shotFilters, f) }
}

// New returns an Analyzer over space.
func New(space *voxspace.Space, p Params, opts ...Option) (*Analyzer, error) {
	if space == nil {
		return nil, fmt.Errorf("analysis: nil voxel space")
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	a := &Analyzer{
		params: p,
		tracer: &tracer{
			params:  p,
			manager: traversal.NewManager(space, p.SceneMargin),
		},
		grid:  voxel.NewGrid(space),
		clock: timeutil.RealClock{},
	}
	if len(p.DiscardClasses) > 0 {
		a.tracer.filters = append(a.tracer.filters, shot.NewClassFilter(p.DiscardClasses...))
	}
	for _, o := range opts {
		o(a)
	}
	diagf("analyzer ready: space=%s acquisition=%s laser=%s weighting=%s maxPAD=%g",
		space, p.Acquisition, p.Laser.Name, p.Weighting, p.MaxPAD)
	return a, nil
}

// Params returns the analyzer parameters.
func (a *Analyzer) Params() Params { return a.params }

// Grid returns the accumulated grid. Callers must not read it while a
// run is in progress.
func (a *Analyzer) Grid() *voxel.Grid { return a.grid }

// Stats returns the shot counters.
func (a *Analyzer) Stats() Stats {
	return Stats{
		Read:      a.read.Load(),
		Processed: a.processed.Load(),
		Missed:    a.missed.Load(),
		Rejected:  a.rejected.Load(),
		Filtered:  a.filtered.Load(),
	}
}

// Incomplete reports whether the last run stopped before its source ended.
func (a *Analyzer) Incomplete() bool { return a.incomplete.Load() }

// Reset zeroes the grid and the counters.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.grid.Reset()
	a.read.Store(0)
	a.processed.Store(0)
	a.missed.Store(0)
	a.rejected.Store(0)
	a.filtered.Store(0)
	a.incomplete.Store(false)
}

// ProcessShot traces s and applies it to the grid. It is safe to call
// from several goroutines. It reports whether the shot entered the grid.
func (a *Analyzer) ProcessShot(s shot.Shot) bool {
	a.read.Add(1)
	_, entered := a.process(s, nil)
	return entered
}

func (a *Analyzer) process(s shot.Shot, buf []pending) ([]pending, bool) {
	if err := s.Validate(); err != nil {
		a.rejected.Add(1)
		tracef("rejected: %v", err)
		return buf, false
	}
	for _, f := range a.shotFilters {
		if !f.AcceptShot(s) {
			a.filtered.Add(1)
			return buf, false
		}
	}
	buf, entered := a.tracer.trace(s, buf[:0])
	if !entered {
		a.missed.Add(1)
		return buf, false
	}

	a.mu.RLock()
	for _, p := range buf {
		a.locks.lock(p.off)
		a.grid.Add(p.off, p.sample)
		a.locks.unlock(p.off)
	}
	a.mu.RUnlock()
	a.processed.Add(1)
	return buf, true
}

// Run consumes src until io.EOF, cancellation or a source error, tracing
// shots on opts.Workers goroutines. It returns once every worker has
// stopped. A cancelled or failed run leaves the analyzer incomplete.
func (a *Analyzer) Run(ctx context.Context, src shot.Source, opts RunOptions) (Stats, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	every := opts.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}
	if opts.Reset {
		a.Reset()
	}
	a.incomplete.Store(true)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := a.clock.Now()
	shots := make(chan shot.Shot, workers*64)
	var done atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var buf []pending
			for s := range shots {
				if runCtx.Err() != nil {
					continue
				}
				buf, _ = a.process(s, buf)
				if n := done.Add(1); opts.Progress != nil && n%every == 0 {
					opts.Progress(Progress{Stats: a.Stats(), Elapsed: a.clock.Since(start)})
				}
			}
		}()
	}

	diagf("run started with %d workers", workers)
	srcErr := a.feed(runCtx, src, shots)
	close(shots)
	wg.Wait()

	stats := a.Stats()
	elapsed := a.clock.Since(start)
	switch {
	case srcErr != nil:
		opsf("run aborted after %d shots: %v", stats.Read, srcErr)
		return stats, srcErr
	case ctx.Err() != nil:
		opsf("run cancelled after %d shots (%d processed)", stats.Read, stats.Processed)
		return stats, fmt.Errorf("analysis run: %w", ctx.Err())
	}
	a.incomplete.Store(false)
	if opts.Progress != nil {
		opts.Progress(Progress{Stats: stats, Elapsed: elapsed})
	}
	diagf("run finished in %s: read=%d processed=%d missed=%d rejected=%d filtered=%d",
		elapsed, stats.Read, stats.Processed, stats.Missed, stats.Rejected, stats.Filtered)
	return stats, nil
}

// feed reads src into shots until the source ends or ctx is done.
func (a *Analyzer) feed(ctx context.Context, src shot.Source, shots chan<- shot.Shot) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		s, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read shot: %w", err)
		}
		a.read.Add(1)
		select {
		case shots <- s:
		case <-ctx.Done():
			return nil
		}
	}
}

// Finalize derives PAD for every voxel and returns the grid. It waits for
// in-flight accumulation and returns ErrIncomplete after a cancelled run
// unless opts.AllowPartial is set. Calling it again gives identical
// results.
func (a *Analyzer) Finalize(opts FinalizeOptions) (*voxel.Grid, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.incomplete.Load() && !opts.AllowPartial {
		return nil, ErrIncomplete
	}
	if err := a.grid.Finalize(a.params.FinalizeParams()); err != nil {
		return nil, err
	}
	if a.incomplete.Load() {
		opsf("finalized a partial run: %d shots processed", a.processed.Load())
	}
	return a.grid, nil
}
