package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/canopy.report/internal/lidar/analysis"
	"github.com/banshee-data/canopy.report/internal/lidar/geom"
	"github.com/banshee-data/canopy.report/internal/lidar/voxel"
	"github.com/banshee-data/canopy.report/internal/lidar/voxspace"
	"github.com/banshee-data/canopy.report/internal/timeutil"
)

// ErrNotFound is returned when a run or grid does not exist.
var ErrNotFound = errors.New("sqlite: not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusComplete  = "complete"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Run is one persisted voxelisation.
type Run struct {
	RunID             string             `json:"run_id"`
	CreatedUnixNanos  int64              `json:"created_unix_nanos"`
	FinishedUnixNanos int64              `json:"finished_unix_nanos,omitempty"`
	Status            string             `json:"status"`
	Box               geom.BoundingBox   `json:"box"`
	Split             voxspace.Splitting `json:"split"`
	Topology          voxspace.Topology  `json:"topology"`
	Acquisition       voxel.Acquisition  `json:"acquisition"`
	ParamsJSON        json.RawMessage    `json:"params_json,omitempty"`
	ShotsTotal        int64              `json:"shots_total"`
	ShotsMissed       int64              `json:"shots_missed"`
	ShotsProcessed    int64              `json:"shots_processed"`
}

// NewRun describes a run over space with parameters p.
func NewRun(space *voxspace.Space, p analysis.Params) (*Run, error) {
	params, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return &Run{
		Status:      StatusRunning,
		Box:         space.BoundingBox(),
		Split:       space.Splitting(),
		Topology:    space.Topology(),
		Acquisition: p.Acquisition,
		ParamsJSON:  params,
	}, nil
}

// Space rebuilds the voxel space of the run.
func (r *Run) Space() (*voxspace.Space, error) {
	return voxspace.New(r.Box, r.Split, r.Topology)
}

// RunStore provides persistence for voxelisation runs.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore wraps an open database. The schema must already be migrated.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db, clock: timeutil.RealClock{}}
}

// connPragmas are applied to every pooled connection through the DSN.
var connPragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(ON)",
}

// dsn appends connPragmas to path.
func dsn(path string) string {
	q := url.Values{"_pragma": connPragmas}
	return "file:" + path + "?" + q.Encode()
}

// Open opens or creates the database at path and migrates the schema.
func Open(path string) (*RunStore, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	s := NewRunStore(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SetClock replaces the clock used for timestamps.
func (s *RunStore) SetClock(c timeutil.Clock) { s.clock = c }

// DB returns the underlying database handle.
func (s *RunStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *RunStore) Close() error { return s.db.Close() }

// busyRetries bounds retryOnBusy on top of the connection busy_timeout.
const busyRetries = 5

// retryOnBusy retries fn with a linear backoff while SQLite reports the
// database as locked.
func (s *RunStore) retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		s.clock.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// InsertRun persists a new run. If RunID is empty, a UUID is generated.
func (s *RunStore) InsertRun(r *Run) error {
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	if r.CreatedUnixNanos == 0 {
		r.CreatedUnixNanos = s.clock.Now().UnixNano()
	}
	if r.Status == "" {
		r.Status = StatusRunning
	}

	var paramsStr interface{}
	if len(r.ParamsJSON) > 0 {
		paramsStr = string(r.ParamsJSON)
	}

	return s.retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO voxel_runs (
				run_id, created_unix_nanos, status,
				min_x, min_y, min_z, max_x, max_y, max_z,
				split_x, split_y, split_z, topology, acquisition,
				params_json, shots_total, shots_missed, shots_processed
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.CreatedUnixNanos, r.Status,
			r.Box.Min.X, r.Box.Min.Y, r.Box.Min.Z, r.Box.Max.X, r.Box.Max.Y, r.Box.Max.Z,
			r.Split.Nx, r.Split.Ny, r.Split.Nz, r.Topology.String(), r.Acquisition.String(),
			paramsStr, r.ShotsTotal, r.ShotsMissed, r.ShotsProcessed,
		)
		return err
	})
}

// FinishRun records the final status and shot counters of a run.
func (s *RunStore) FinishRun(runID, status string, stats analysis.Stats) error {
	now := s.clock.Now().UnixNano()
	return s.retryOnBusy(func() error {
		res, err := s.db.Exec(`
			UPDATE voxel_runs
			SET finished_unix_nanos = ?, status = ?, shots_total = ?, shots_missed = ?, shots_processed = ?
			WHERE run_id = ?`,
			now, status, stats.Read, stats.Missed, stats.Processed, runID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("finish run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

// StatusFor maps the outcome of analysis.Analyzer.Run to a run status.
func StatusFor(err error) string {
	switch {
	case err == nil:
		return StatusComplete
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusFailed
	}
}

const runColumns = `run_id, created_unix_nanos, finished_unix_nanos, status,
	min_x, min_y, min_z, max_x, max_y, max_z,
	split_x, split_y, split_z, topology, acquisition,
	params_json, shots_total, shots_missed, shots_processed`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r           Run
		finished    sql.NullInt64
		params      sql.NullString
		topology    string
		acquisition string
	)
	err := row.Scan(
		&r.RunID, &r.CreatedUnixNanos, &finished, &r.Status,
		&r.Box.Min.X, &r.Box.Min.Y, &r.Box.Min.Z, &r.Box.Max.X, &r.Box.Max.Y, &r.Box.Max.Z,
		&r.Split.Nx, &r.Split.Ny, &r.Split.Nz, &topology, &acquisition,
		&params, &r.ShotsTotal, &r.ShotsMissed, &r.ShotsProcessed,
	)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedUnixNanos = finished.Int64
	}
	if params.Valid {
		r.ParamsJSON = json.RawMessage(params.String)
	}
	if r.Topology, err = voxspace.ParseTopology(topology); err != nil {
		return nil, fmt.Errorf("run %s: %w", r.RunID, err)
	}
	if r.Acquisition, err = voxel.ParseAcquisition(acquisition); err != nil {
		return nil, fmt.Errorf("run %s: %w", r.RunID, err)
	}
	return &r, nil
}

// GetRun returns the run with runID.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM voxel_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. A limit of 0 or less
// returns every run.
func (s *RunStore) ListRuns(limit int) ([]*Run, error) {
	q := `SELECT ` + runColumns + ` FROM voxel_runs ORDER BY created_unix_nanos DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its grid.
func (s *RunStore) DeleteRun(runID string) error {
	return s.retryOnBusy(func() error {
		res, err := s.db.Exec(`DELETE FROM voxel_runs WHERE run_id = ?`, runID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("delete run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

// SaveGrid stores g as the grid of runID, replacing any previous one.
func (s *RunStore) SaveGrid(runID string, g *voxel.Grid) error {
	blob, err := voxel.EncodeSnapshot(g)
	if err != nil {
		return fmt.Errorf("encode grid: %w", err)
	}
	now := s.clock.Now().UnixNano()
	return s.retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO voxel_grids (run_id, grid_blob, voxel_count, sampled_count, saved_unix_nanos)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id) DO UPDATE SET
				grid_blob = excluded.grid_blob,
				voxel_count = excluded.voxel_count,
				sampled_count = excluded.sampled_count,
				saved_unix_nanos = excluded.saved_unix_nanos`,
			runID, blob, g.Len(), g.SampledCount(), now,
		)
		return err
	})
}

// LoadGrid restores the grid of runID over the run's own voxel space.
func (s *RunStore) LoadGrid(runID string) (*voxel.Grid, error) {
	r, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}
	var blob []byte
	err = s.db.QueryRow(`SELECT grid_blob FROM voxel_grids WHERE run_id = ?`, runID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("grid of run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load grid: %w", err)
	}
	space, err := r.Space()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return voxel.DecodeSnapshot(space, blob)
}
