package coordinator_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/positivef/udo-sync/internal/common/clock"
	"github.com/positivef/udo-sync/internal/config"
	"github.com/positivef/udo-sync/internal/coordinator"
	"github.com/positivef/udo-sync/internal/domain"
)

func newTestConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.DEFAULT_APP_CONFIG
	cfg.Vault.Root = t.TempDir()
	cfg.Vault.StateDir = t.TempDir()
	cfg.Queue.WindowSeconds = 1
	cfg.Backup.IntervalHours = 1
	return &cfg
}

func newTestCoordinator(t *testing.T) (*coordinator.Coordinator, *clock.MockClock) {
	t.Helper()
	mc := &clock.MockClock{CurrentTime: time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)}
	c, err := coordinator.New(coordinator.Options{
		Config: newTestConfig(t),
		Clock:  mc,
	})
	require.NoError(t, err)
	require.NoError(t, c.Start())
	t.Cleanup(func() { _ = c.Stop() })
	return c, mc
}

// P4: a single sync_event, force-flushed, persists one note.
func TestCoordinator_SyncEventForceFlush(t *testing.T) {
	c, _ := newTestCoordinator(t)

	err := c.SyncEvent("phase_transition", map[string]any{"from": "design", "to": "mvp"})
	require.NoError(t, err)

	flushed := c.ForceFlush()
	require.Equal(t, 1, flushed)

	stats := c.SyncStatistics()
	require.Equal(t, 1, stats.TotalSyncs)
	require.EqualValues(t, 1, stats.TotalEvents)
	require.True(t, stats.VaultAvailable)
	require.Equal(t, domain.CircuitClosed, stats.CircuitState)
}

// §8 scenario 2: three events inside one debounce window batch into a
// single flush with events_count = 3.
func TestCoordinator_BatchesWithinWindow(t *testing.T) {
	c, _ := newTestCoordinator(t)

	require.NoError(t, c.SyncEvent("task_completion", map[string]any{"task_id": "t1", "title": "a", "success": true}))
	require.NoError(t, c.SyncEvent("task_completion", map[string]any{"task_id": "t2", "title": "b", "success": true}))
	require.NoError(t, c.SyncEvent("task_completion", map[string]any{"task_id": "t3", "title": "c", "success": false}))

	flushed := c.ForceFlush()
	require.Equal(t, 3, flushed)

	stats := c.SyncStatistics()
	require.Equal(t, 1, stats.TotalSyncs)
	require.EqualValues(t, 3.0, stats.BatchingRate)
}

// Error resolution saved through the coordinator is retrievable via
// tier-1 resolution once the backing note is flushed to the vault.
func TestCoordinator_SaveThenResolveErrorTier1(t *testing.T) {
	c, _ := newTestCoordinator(t)

	err := c.SaveErrorResolution("ModuleNotFoundError: No module named 'pandas'", "pip install pandas", "during build")
	require.NoError(t, err)

	c.ForceFlush()

	solution, ok, latencyMS, err := c.ResolveErrorTier1("ModuleNotFoundError: No module named 'pandas'")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "pip install pandas", solution)
	require.GreaterOrEqual(t, latencyMS, 0.0)
}

// search_knowledge's hot cache returns the same number of results on two
// repeated calls after a flushed write, without erroring.
func TestCoordinator_SearchKnowledgeCacheSurvivesRepeatedCalls(t *testing.T) {
	c, _ := newTestCoordinator(t)

	require.NoError(t, c.SyncEvent("phase_transition", map[string]any{"from": "mvp", "to": "implementation"}))
	c.ForceFlush()

	first, err := c.SearchKnowledge("implementation", 10, "")
	require.NoError(t, err)

	second, err := c.SearchKnowledge("implementation", 10, "")
	require.NoError(t, err)
	require.Equal(t, len(first), len(second))
}

func TestCoordinator_GetRecentNotes(t *testing.T) {
	c, _ := newTestCoordinator(t)

	require.NoError(t, c.SyncEvent("phase_transition", map[string]any{"from": "ideation", "to": "design"}))
	c.ForceFlush()

	notes, err := c.GetRecentNotes(7)
	require.NoError(t, err)
	require.Len(t, notes, 1)
}

func TestCoordinator_DoubleStopIsSafe(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
}

// RecordCoverageTrend appends one JSON line to coverage_trend.jsonl under
// the configured state dir.
func TestCoordinator_RecordCoverageTrend(t *testing.T) {
	cfg := newTestConfig(t)
	mc := &clock.MockClock{CurrentTime: time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)}
	c, err := coordinator.New(coordinator.Options{Config: cfg, Clock: mc})
	require.NoError(t, err)
	require.NoError(t, c.Start())
	t.Cleanup(func() { _ = c.Stop() })

	require.NoError(t, c.RecordCoverageTrend(82.5, 400, 330))

	raw, err := os.ReadFile(filepath.Join(cfg.Vault.StateDir, "coverage_trend.jsonl"))
	require.NoError(t, err)
	line := strings.TrimSpace(string(raw))
	require.Contains(t, line, `"coverage_percent":82.5`)
	require.Contains(t, line, `"total_lines":400`)
	require.Contains(t, line, `"covered_lines":330`)
	require.Contains(t, line, `"timestamp":"2026-07-31T09:00:00Z"`)
}
