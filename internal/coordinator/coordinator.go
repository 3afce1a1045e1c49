// Package coordinator implements the Sync Coordinator (C8): the
// CoreContext-equivalent orchestrator spec.md §9 calls for in place of the
// source's global singletons. It owns C1–C7, binds producers to the event
// queue and consumers to search/resolution, and runs the periodic backup
// probe loop.
package coordinator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/positivef/udo-sync/internal/belief"
	"github.com/positivef/udo-sync/internal/breaker"
	"github.com/positivef/udo-sync/internal/cache"
	"github.com/positivef/udo-sync/internal/common/clock"
	"github.com/positivef/udo-sync/internal/common/log"
	"github.com/positivef/udo-sync/internal/config"
	"github.com/positivef/udo-sync/internal/domain"
	"github.com/positivef/udo-sync/internal/metrics"
	"github.com/positivef/udo-sync/internal/queue"
	"github.com/positivef/udo-sync/internal/resolution"
	"github.com/positivef/udo-sync/internal/search"
	"github.com/positivef/udo-sync/internal/vault"
)

// ErrNotStarted reports that the coordinator has not been started. No
// Coordinator method returns it; operations work before Start as well.
var ErrNotStarted = errors.New("coordinator: not started")

// ChangesProbe reports whether unsynced changes exist (typically a VCS
// working-tree status check). Used by the periodic backup loop. Errors are
// logged and swallowed per spec.md §7 ProbeFailure — they never stop the
// loop.
type ChangesProbe func() (bool, error)

// backupMessage is the Korean-language note the original background task
// embeds verbatim ("automatic backup, to prevent context loss") — the
// literal traceable case behind P7, exercised here rather than only in the
// sanitizer unit test.
const backupMessage = "자동 백업 (컨텍스트 유실 방지)"

// defaultProjectName keys the belief store when Options.Project is empty.
const defaultProjectName = "default"

// Options configures a new Coordinator.
type Options struct {
	Config  *config.AppConfig
	Logger  log.Logger
	Clock   clock.Clock
	Metrics *metrics.Registry

	// Project names the belief-store file under <state_dir>/bayesian/.
	Project string

	// ChangesProbe backs the periodic backup loop. Defaults to a probe
	// that always reports no changes (the loop still runs, it just never
	// enqueues an event) when nil — the real VCS probe is an external
	// collaborator per spec.md §1.
	ChangesProbe ChangesProbe

	// Rules overrides the default event-type -> belief observation table.
	Rules map[string]queue.ObservationRule
}

// Coordinator binds the event queue, vault, search, resolution, and belief
// components into a single lifecycle-managed object.
type Coordinator struct {
	cfg     *config.AppConfig
	logger  log.Logger
	clock   clock.Clock
	metrics *metrics.Registry

	vaultStore  *vault.Store
	watcher     *vault.Watcher
	hotCache    *cache.Cache
	breaker     *breaker.Breaker
	queue       *queue.Queue
	search      *search.Engine
	resolve     *resolution.Cache
	beliefTrack *belief.Tracker
	beliefStore *belief.Store
	coverageLog *belief.CoverageTrendLogger

	changesProbe ChangesProbe

	totalEvents atomic.Int64

	mu           sync.Mutex
	started      bool
	stopped      bool
	backupCancel chan struct{}
	backupDone   chan struct{}
}

// New constructs a Coordinator. It creates the belief directory and opens
// the belief store file, but starts no background work; call Start for that.
func New(opts Options) (*Coordinator, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("coordinator: Config is required")
	}
	cfg := opts.Config

	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	logger = log.WithComponent(logger, "coordinator")
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	changesProbe := opts.ChangesProbe
	if changesProbe == nil {
		changesProbe = func() (bool, error) { return false, nil }
	}
	rules := opts.Rules
	if rules == nil {
		rules = DefaultObservationRules()
	}

	vaultStore := vault.New(vault.Options{
		Root:     cfg.Vault.Root,
		DailyDir: cfg.Vault.DailyDir,
		Now:      clk.Now,
	})

	br := breaker.New(breaker.Options{
		Name:             "vault-write",
		FailureThreshold: uint32(cfg.Breaker.FailureThreshold),
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout(),
		Metrics:          opts.Metrics,
	})

	hotCache := cache.New(cache.Options{
		MaxBytes: cfg.Cache.MaxBytes,
		Size:     searchResultSize,
		Metrics:  opts.Metrics,
	})

	project := opts.Project
	if project == "" {
		project = defaultProjectName
	}
	beliefPath := filepath.Join(cfg.Vault.StateDir, "bayesian", project+".json")
	predictionLog := belief.NewJSONLLogger(filepath.Join(cfg.Vault.StateDir, "predictions_log.jsonl"))
	groundTruthLog := belief.NewJSONLLogger(filepath.Join(cfg.Vault.StateDir, "prediction_ground_truth.jsonl"))
	beliefTrack := belief.New(belief.Options{
		Now:           clk.Now,
		PredictionLog: predictionLog,
		GroundTruth:   groundTruthLog,
	})

	if err := os.MkdirAll(filepath.Dir(beliefPath), 0o755); err != nil {
		return nil, fmt.Errorf("coordinator: create belief state dir: %w", err)
	}
	beliefStore, err := belief.OpenStore(beliefPath)
	if err != nil {
		return nil, fmt.Errorf("coordinator: open belief store: %w", err)
	}

	deadLetter := queue.NewFileDeadLetter(filepath.Join(cfg.Vault.StateDir, "deadletter.jsonl"))
	coverageLog := belief.NewCoverageTrendLogger(filepath.Join(cfg.Vault.StateDir, "coverage_trend.jsonl"))

	c := &Coordinator{
		cfg:          cfg,
		logger:       logger,
		clock:        clk,
		metrics:      opts.Metrics,
		vaultStore:   vaultStore,
		hotCache:     hotCache,
		breaker:      br,
		beliefTrack:  beliefTrack,
		beliefStore:  beliefStore,
		coverageLog:  coverageLog,
		changesProbe: changesProbe,
	}

	sink := newVaultSink(vaultStore, br, c.hotCache.Clear)
	c.queue = queue.New(queue.Options{
		Window:     cfg.Queue.Window(),
		MaxPending: cfg.Queue.MaxPending,
		Sink:       sink,
		Clock:      clk,
		Logger:     logger,
		Rules:      rules,
		BeliefSink: beliefTrack,
		DeadLetter: deadLetter,
		Metrics:    opts.Metrics,
	})

	c.search = search.New(search.Options{
		Store:   vaultStore,
		Now:     clk.Now,
		Metrics: opts.Metrics,
	})
	c.resolve = resolution.New(resolution.Options{
		Search: c.search,
		Notes:  vaultStore,
		Sink:   c.queue,
	})

	return c, nil
}

// Start restores persisted belief state, ensures the vault presence marker,
// and arms the periodic backup loop.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	if err := c.vaultStore.EnsureMarker(); err != nil {
		c.logger.Warn(map[string]any{"error": err.Error()}, "vault marker creation failed")
	}

	watcher, err := vault.NewWatcher(c.vaultStore)
	if err != nil {
		c.logger.Warn(map[string]any{"error": err.Error()}, "vault watcher unavailable, falling back to write-triggered invalidation only")
	} else {
		c.watcher = watcher
	}

	beliefs, profiles, err := c.beliefStore.Load()
	if err != nil && !errors.Is(err, belief.ErrNotFound) {
		return fmt.Errorf("coordinator: load belief snapshot: %w", err)
	}
	if err == nil {
		c.beliefTrack.Restore(beliefs, profiles)
	}

	c.backupCancel = make(chan struct{})
	c.backupDone = make(chan struct{})
	go c.runBackupLoop(c.backupCancel, c.backupDone)

	c.started = true
	return nil
}

// Stop cancels the backup loop, forces a final flush, and persists belief
// state. Safe to call once; a second call is a no-op.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	cancel, done := c.backupCancel, c.backupDone
	c.mu.Unlock()

	if cancel != nil {
		close(cancel)
		<-done
	}

	if c.watcher != nil {
		if err := c.watcher.Close(); err != nil {
			c.logger.Warn(map[string]any{"error": err.Error()}, "vault watcher close failed")
		}
	}

	c.queue.Stop()

	beliefs, profiles := c.beliefTrack.Snapshot()
	if err := c.beliefStore.Save(beliefs, profiles); err != nil {
		c.logger.Error(map[string]any{"error": err.Error()}, "failed to persist belief snapshot")
	}
	if err := c.beliefStore.Close(); err != nil {
		return fmt.Errorf("coordinator: close belief store: %w", err)
	}
	return nil
}

// runBackupLoop ticks every Backup.Interval, asking the changes probe
// whether unsynced work exists; a positive answer enqueues a
// periodic_backup event. Probe failures are logged and swallowed
// (ProbeFailure, spec.md §7) — they never stop the loop or propagate.
func (c *Coordinator) runBackupLoop(cancel <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.Backup.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			changed, err := c.changesProbe()
			if err != nil {
				c.logger.Warn(map[string]any{"error": err.Error()}, "periodic backup probe failed")
				continue
			}
			if !changed {
				continue
			}
			if err := c.SyncEvent(domain.EventPeriodicBackup, map[string]any{"message": backupMessage}); err != nil {
				c.logger.Warn(map[string]any{"error": err.Error()}, "periodic backup sync_event failed")
			}
		}
	}
}

// SyncEvent is the sync_event operation (spec.md §6): non-blocking,
// fire-and-forget from the producer's perspective.
func (c *Coordinator) SyncEvent(eventType string, data map[string]any) error {
	c.totalEvents.Add(1)
	return c.queue.SyncEvent(eventType, domain.DataFromMap(eventType, data))
}

// ForceFlush is the force_flush operation: flush synchronously and report
// how many events were persisted.
func (c *Coordinator) ForceFlush() int {
	return c.queue.ForceFlush()
}

// SearchKnowledge is the search_knowledge operation: three-tier search with
// a hot-path cache (C1) in front of the underlying engine.
func (c *Coordinator) SearchKnowledge(query string, maxResults int, errorType string) ([]domain.SearchResult, error) {
	key := fmt.Sprintf("search:%s|%d|%s", query, maxResults, errorType)
	if cached, ok := c.hotCache.Get(key); ok {
		if results, ok := cached.([]domain.SearchResult); ok {
			return results, nil
		}
	}
	results, err := c.search.Search(query, errorType, maxResults, 0)
	if err != nil {
		return nil, err
	}
	_ = c.hotCache.Set(key, results)
	return results, nil
}

// ResolveErrorTier1 is the resolve_error_tier1 operation: returns the
// solution text (or ok=false) and the lookup latency in milliseconds.
func (c *Coordinator) ResolveErrorTier1(errText string) (solution string, ok bool, latencyMS float64, err error) {
	start := c.clock.Now()
	solution, ok, err = c.resolve.Resolve(errText)
	latencyMS = clock.ElapsedMS(c.clock, start)
	return solution, ok, latencyMS, err
}

// SaveErrorResolution is the save_error_resolution operation.
func (c *Coordinator) SaveErrorResolution(errText, solution, context string) error {
	c.totalEvents.Add(1)
	return c.resolve.Save(errText, solution, context)
}

// GetRecentNotes is the get_recent_notes operation, clamping days to the
// spec's 1..30 range.
func (c *Coordinator) GetRecentNotes(days int) ([]domain.NoteSummary, error) {
	return c.vaultStore.ListRecent(days)
}

// Statistics is the sync_statistics operation's result shape.
type Statistics struct {
	TotalSyncs     int
	TotalEvents    int64
	BatchingRate   float64
	PendingEvents  int
	VaultAvailable bool
	CircuitState   domain.CircuitState
}

// SyncStatistics is the sync_statistics operation.
func (c *Coordinator) SyncStatistics() Statistics {
	history := c.queue.History()
	totalSyncs := len(history)
	totalEvents := c.totalEvents.Load()

	batchingRate := 0.0
	if totalSyncs > 0 {
		batchingRate = float64(totalEvents) / float64(totalSyncs)
	}

	return Statistics{
		TotalSyncs:     totalSyncs,
		TotalEvents:    totalEvents,
		BatchingRate:   batchingRate,
		PendingEvents:  c.queue.Pending(),
		VaultAvailable: c.vaultStore.Available(),
		CircuitState:   c.breaker.State(),
	}
}

// RecordCoverageTrend appends a coverage_trend.jsonl data point: the
// producer side of the belief tracker's coverage-trend log, called by a
// caller that tracks test or documentation coverage over time (spec.md §8
// open question: the core has no coverage instrumentation of its own).
func (c *Coordinator) RecordCoverageTrend(coveragePercent float64, totalLines, coveredLines int) error {
	timestamp := c.clock.Now().Format(time.RFC3339)
	return c.coverageLog.Record(timestamp, coveragePercent, totalLines, coveredLines)
}

// searchResultSize estimates the byte footprint of a cached search result
// slice: a fixed per-result overhead, not a deep size (cache.SizeFunc must
// stay deterministic and shallow per spec.md §4.1).
func searchResultSize(value any) int {
	if results, ok := value.([]domain.SearchResult); ok {
		return len(results)*256 + 64
	}
	return cache.StringByteSize(value)
}
