package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/canopy.report/internal/timeutil"
)

// setupRunStore opens a migrated store in a temporary directory with a
// mock clock fixed at a known instant.
func setupRunStore(t *testing.T) (*RunStore, *timeutil.MockClock) {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.SetClock(clock)
	return s, clock
}
