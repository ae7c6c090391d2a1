// Package main provides the voxelisation tool. It traces a file of LiDAR
// shots through a voxel grid, derives plant area density per voxel and
// writes the grid as a voxel text file, with optional SQLite persistence
// and plots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/canopy.report/internal/config"
	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/lidar/analysis"
	"github.com/banshee-data/canopy.report/internal/lidar/monitor"
	"github.com/banshee-data/canopy.report/internal/lidar/shot"
	sqlite "github.com/banshee-data/canopy.report/internal/lidar/storage/sqlite"
	"github.com/banshee-data/canopy.report/internal/lidar/traversal"
	"github.com/banshee-data/canopy.report/internal/lidar/voxel"
	"github.com/banshee-data/canopy.report/internal/version"
)

// Options holds the command line of one voxelisation.
type Options struct {
	ConfigPath   string
	ShotsPath    string
	OutPath      string
	DBPath       string
	PlotPath     string
	HeatmapPath  string
	HeatmapLayer int
	Workers      int
	MaxZenith    float64
	AllowPartial bool
	Verbose      bool
	Trace        bool
	ShowVersion  bool
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if opts.ShowVersion {
		fmt.Println("voxelise", version.String())
		return
	}
	if opts.ShotsPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -shots is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, fsutil.OSFileSystem{}, os.Stdout, os.Stderr); err != nil {
		log.Fatalf("Voxelisation failed: %v", err)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Options, error) {
	var opts Options

	fs.StringVar(&opts.ConfigPath, "config", "", "JSON voxelisation config, merged over "+config.DefaultConfigPath)
	fs.StringVar(&opts.ShotsPath, "shots", "", "Shot file: x y z dx dy dz n r1..rn [c1..cn] per line (required)")
	fs.StringVar(&opts.OutPath, "out", "voxels.vox", "Output voxel file")
	fs.StringVar(&opts.DBPath, "db", "", "SQLite database path (optional, for run persistence)")
	fs.StringVar(&opts.PlotPath, "plot", "", "Write a PNG vertical PAD profile to this path")
	fs.StringVar(&opts.HeatmapPath, "heatmap", "", "Write an HTML PAD heatmap of one layer to this path")
	fs.IntVar(&opts.HeatmapLayer, "heatmap-layer", 0, "Layer index k for -heatmap")
	fs.IntVar(&opts.Workers, "workers", 0, "Worker goroutines (0 = config value, then one per CPU)")
	fs.Float64Var(&opts.MaxZenith, "max-zenith", 0, "Skip shots more than this many degrees off nadir (0 = keep all)")
	fs.BoolVar(&opts.AllowPartial, "allow-partial", false, "Finalize and write the grid even if the run was interrupted")
	fs.BoolVar(&opts.Verbose, "v", false, "Verbose diagnostics")
	fs.BoolVar(&opts.Trace, "trace", false, "Per-shot trace logging (very noisy)")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: %s -shots FILE [options]\n\n", fs.Name())
		fmt.Fprintf(out, "Traces LiDAR shots through a voxel grid and estimates plant area density:\n")
		fmt.Fprintf(out, "  1. Find the first voxel each shot enters\n")
		fmt.Fprintf(out, "  2. Walk the shot voxel by voxel, splitting the beam between echoes\n")
		fmt.Fprintf(out, "  3. Accumulate entering and intercepted beam per voxel\n")
		fmt.Fprintf(out, "  4. Invert transmittance into PAD and write the grid\n\n")
		fmt.Fprintf(out, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nExamples:\n")
		fmt.Fprintf(out, "  %s -shots plot.txt -config plot.json -out plot.vox\n", fs.Name())
		fmt.Fprintf(out, "  %s -shots plot.txt -config plot.json -db runs.db -plot profile.png\n", fs.Name())
	}

	err := fs.Parse(args)
	return opts, err
}

// setupLogging routes the package log streams. Warnings always reach w;
// diagnostics need -v and per-shot telemetry needs -trace.
func setupLogging(opts Options, w io.Writer) {
	var diag, trace io.Writer
	if opts.Verbose || opts.Trace {
		diag = w
	}
	if opts.Trace {
		trace = w
	}
	traversal.SetLogWriters(w, diag, trace)
	voxel.SetLogWriters(w, diag, trace)
	analysis.SetLogWriters(w, diag, trace)
	monitor.SetLogWriters(w, diag, trace)
}

// loadConfig merges the optional file at path over the repository
// defaults, when those are reachable from the working directory.
func loadConfig(path string, workers int) (*config.VoxelConfig, error) {
	cfg := config.EmptyVoxelConfig()
	if _, err := os.Stat(config.DefaultConfigPath); err == nil {
		if cfg, err = config.LoadVoxelConfig(config.DefaultConfigPath); err != nil {
			return nil, err
		}
	}
	if path != "" {
		user, err := config.LoadVoxelConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Merge(user)
	}
	if workers > 0 {
		cfg.Workers = &workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, cfg.RequireGeometry()
}

func run(ctx context.Context, opts Options, fsys fsutil.FileSystem, stdout, stderr io.Writer) error {
	setupLogging(opts, stderr)
	logger := log.New(stderr, "", log.LstdFlags)

	cfg, err := loadConfig(opts.ConfigPath, opts.Workers)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	space, err := analysis.SpaceFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("voxel space: %w", err)
	}
	params, err := analysis.ParamsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}
	logger.Printf("voxel space %s, %s acquisition, laser %s", space, params.Acquisition, params.Laser.Name)

	f, err := fsys.Open(opts.ShotsPath)
	if err != nil {
		return fmt.Errorf("open shots: %w", err)
	}
	defer f.Close()

	var store *sqlite.RunStore
	var rec *sqlite.Run
	if opts.DBPath != "" {
		if store, err = sqlite.Open(opts.DBPath); err != nil {
			return err
		}
		defer store.Close()
		if rec, err = sqlite.NewRun(space, params); err != nil {
			return err
		}
		if err := store.InsertRun(rec); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		logger.Printf("run %s recorded in %s", rec.RunID, opts.DBPath)
	}

	var aopts []analysis.Option
	if opts.MaxZenith > 0 {
		aopts = append(aopts, analysis.WithShotFilter(shot.ZenithFilter{MaxZenith: opts.MaxZenith}))
	}
	a, err := analysis.New(space, params, aopts...)
	if err != nil {
		return err
	}
	stats, runErr := a.Run(ctx, shot.NewReader(f), analysis.RunOptions{
		Workers:       cfg.GetWorkers(),
		ProgressEvery: cfg.GetProgressEvery(),
		Progress: func(p analysis.Progress) {
			logger.Printf("%d shots read, %d processed, %d missed (%s)", p.Read, p.Processed, p.Missed, p.Elapsed)
		},
	})
	if store != nil {
		if err := store.FinishRun(rec.RunID, sqlite.StatusFor(runErr), stats); err != nil {
			logger.Printf("failed to finish run %s: %v", rec.RunID, err)
		}
	}
	if runErr != nil && !(opts.AllowPartial && errors.Is(runErr, context.Canceled)) {
		return runErr
	}

	grid, err := a.Finalize(analysis.FinalizeOptions{AllowPartial: opts.AllowPartial})
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	if err := voxel.WriteFile(fsys, opts.OutPath, grid, params.FinalizeParams()); err != nil {
		return fmt.Errorf("write grid: %w", err)
	}
	logger.Printf("wrote %s (%d of %d voxels sampled)", opts.OutPath, grid.SampledCount(), grid.Len())

	if store != nil {
		if err := store.SaveGrid(rec.RunID, grid); err != nil {
			return fmt.Errorf("save grid: %w", err)
		}
	}
	if err := writeViews(opts, fsys, grid); err != nil {
		return err
	}

	printSummary(stdout, stats, grid)
	return nil
}

func field(name string) voxel.Field {
	f, err := voxel.FieldByName(name)
	if err != nil {
		panic(err)
	}
	return f
}

func writeViews(opts Options, fsys fsutil.FileSystem, grid *voxel.Grid) error {
	if opts.PlotPath != "" {
		if err := monitor.PlotProfile(fsys, opts.PlotPath, grid, field("PadBF"), field("PadBS")); err != nil {
			return fmt.Errorf("plot: %w", err)
		}
	}
	if opts.HeatmapPath != "" {
		w, err := fsutil.CreateAll(fsys, opts.HeatmapPath)
		if err != nil {
			return fmt.Errorf("heatmap: %w", err)
		}
		if err := monitor.RenderLayerHeatmap(w, grid, field("PadBF"), opts.HeatmapLayer); err != nil {
			w.Close()
			return fmt.Errorf("heatmap: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("heatmap: %w", err)
		}
	}
	return nil
}

func printSummary(w io.Writer, stats analysis.Stats, grid *voxel.Grid) {
	fmt.Fprintf(w, "shots: read=%d processed=%d missed=%d rejected=%d filtered=%d\n",
		stats.Read, stats.Processed, stats.Missed, stats.Rejected, stats.Filtered)
	for _, name := range []string{"PadBF", "PadBS", "nbSampling"} {
		fmt.Fprintln(w, grid.Summarize(field(name)))
	}
}
