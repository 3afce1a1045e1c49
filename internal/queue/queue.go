// Package queue implements the event debouncer: a rolling coalescing
// window that collapses bursts of producer events into a single persisted
// batch. There is no dedicated flusher goroutine: SyncEvent arms a
// time.AfterFunc timer when none is pending, ForceFlush and Stop cancel it
// and flush synchronously, and a mutex serializes all flushes.
package queue

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/positivef/udo-sync/internal/common/clock"
	"github.com/positivef/udo-sync/internal/common/log"
	"github.com/positivef/udo-sync/internal/domain"
	"github.com/positivef/udo-sync/internal/metrics"
	"github.com/positivef/udo-sync/internal/search"
)

// ErrShuttingDown is returned by SyncEvent once Stop has been called.
var ErrShuttingDown = errors.New("queue: shutting down")

// ErrQueueFull is returned by SyncEvent when pending already holds
// MaxPending events. The source queue is unbounded; this cap exists so a
// stalled sink cannot grow memory without limit.
var ErrQueueFull = errors.New("queue: pending events at capacity")

const (
	// DefaultWindow is the debounce coalescing window.
	DefaultWindow = 3 * time.Second
	// DefaultMaxPending bounds in-memory pending events.
	DefaultMaxPending = 10000
	// MaxFlushAttempts is the number of persist attempts before a batch is
	// dropped to the dead-letter log.
	MaxFlushAttempts = 3
)

// Sink persists a single note. A *vault.Store satisfies this directly.
type Sink interface {
	Write(title string, fm domain.FrontMatter, body string, timestamp time.Time) (string, error)
}

// ObservationRule derives a belief-tracker observation from a flushed
// event, or reports ok=false if this event type carries no observation.
type ObservationRule func(domain.Event) (phase domain.Phase, vector domain.BeliefVector, success bool, ok bool)

// BeliefSink receives derived observations at flush time.
type BeliefSink interface {
	Observe(phase domain.Phase, vector domain.BeliefVector, success bool)
}

// DeadLetterSink records batches that could not be persisted after
// MaxFlushAttempts attempts.
type DeadLetterSink interface {
	Write(title, body string, cause error, timestamp time.Time)
}

// BatchRecord is a lightweight entry in the in-memory sync history.
type BatchRecord struct {
	Timestamp   time.Time
	EventsCount int
	EventType   string
	NotePath    string
	Err         error
}

// Options configures a new Queue.
type Options struct {
	Window      time.Duration
	MaxPending  int
	Sink        Sink
	Clock       clock.Clock
	Logger      log.Logger
	Rules       map[string]ObservationRule
	BeliefSink  BeliefSink
	DeadLetter  DeadLetterSink
	Metrics     *metrics.Registry
}

// Queue coalesces events arriving within Window into a single flush.
type Queue struct {
	window     time.Duration
	maxPending int
	sink       Sink
	clock      clock.Clock
	logger     log.Logger
	rules      map[string]ObservationRule
	beliefSink BeliefSink
	deadLetter DeadLetterSink
	metrics    *metrics.Registry

	mu           sync.Mutex
	pending      []domain.Event
	lastFlushAt  time.Time
	hasLastFlush bool
	timer        *time.Timer

	flushMu sync.Mutex

	historyMu sync.Mutex
	history   []BatchRecord

	shuttingDown atomic.Bool
}

// New constructs a Queue per Options.
func New(opts Options) *Queue {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	maxPending := opts.MaxPending
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	logger = log.WithComponent(logger, "queue")
	return &Queue{
		window:     window,
		maxPending: maxPending,
		sink:       opts.Sink,
		clock:      clk,
		logger:     logger,
		rules:      opts.Rules,
		beliefSink: opts.BeliefSink,
		deadLetter: opts.DeadLetter,
		metrics:    opts.Metrics,
	}
}

// SyncEvent appends a new Event to pending and, per the debounce rule,
// either triggers an immediate flush or arms/leaves the coalescing timer.
// Never blocks on persistence.
func (q *Queue) SyncEvent(eventType string, data domain.EventData) error {
	if q.shuttingDown.Load() {
		return ErrShuttingDown
	}

	now := q.clock.Now()
	evt, err := domain.NewEvent(eventType, data, now, now)
	if err != nil {
		return err
	}

	q.mu.Lock()
	if len(q.pending) >= q.maxPending {
		q.mu.Unlock()
		return ErrQueueFull
	}
	wasEmpty := len(q.pending) == 0
	q.pending = append(q.pending, evt)

	// A fresh queue (no flush has ever happened) always defers to the
	// coalescing timer rather than flushing the very first event alone —
	// confirmed against the debounce test fixtures this behavior was
	// ported from. Only a genuinely idle queue (idle longer than window
	// since its last completed flush) gets the immediate-flush fast path.
	immediate := wasEmpty && q.hasLastFlush && now.Sub(q.lastFlushAt) > q.window
	if immediate {
		q.stopTimerLocked()
		q.mu.Unlock()
		go q.triggerFlush()
		return nil
	}

	if q.timer == nil {
		q.timer = time.AfterFunc(q.window, q.onTimerFire)
	}
	q.mu.Unlock()
	return nil
}

func (q *Queue) onTimerFire() {
	q.mu.Lock()
	q.timer = nil
	q.mu.Unlock()
	q.triggerFlush()
}

func (q *Queue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

func (q *Queue) triggerFlush() {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()
	q.doFlushLocked()
}

// ForceFlush cancels any armed timer and flushes synchronously, returning
// the number of Events persisted. A second call with nothing pending
// returns 0 and performs no I/O.
func (q *Queue) ForceFlush() int {
	q.mu.Lock()
	q.stopTimerLocked()
	q.mu.Unlock()

	q.flushMu.Lock()
	defer q.flushMu.Unlock()
	return q.doFlushLocked()
}

// Stop marks the queue as shutting down (further SyncEvent calls fail with
// ErrShuttingDown), then performs one final force-flush.
func (q *Queue) Stop() int {
	q.shuttingDown.Store(true)
	return q.ForceFlush()
}

func (q *Queue) doFlushLocked() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	now := q.clock.Now()
	title, body := buildBatchNote(batch, now)
	fm := batchFrontMatter(batch, now)

	start := q.clock.Now()
	_, err := q.persistWithBackoff(title, fm, body, now)
	q.metrics.ObserveFlush(len(batch), q.clock.Now().Sub(start).Seconds(), err != nil)

	q.mu.Lock()
	q.lastFlushAt = now
	q.hasLastFlush = true
	q.mu.Unlock()

	record := BatchRecord{Timestamp: now, EventsCount: len(batch), EventType: fm.GetString("event_type"), Err: err}
	if err != nil {
		q.logger.Error(map[string]any{"error": err.Error(), "events_count": len(batch)}, "flush failed after retries, dropping to dead letter log")
		if q.deadLetter != nil {
			q.deadLetter.Write(title, body, err, now)
		}
	} else {
		q.publishObservations(batch)
	}

	q.historyMu.Lock()
	q.history = append(q.history, record)
	q.historyMu.Unlock()

	return len(batch)
}

func (q *Queue) persistWithBackoff(title string, fm domain.FrontMatter, body string, now time.Time) (string, error) {
	if q.sink == nil {
		return "", nil
	}
	var path string
	op := func() error {
		p, err := q.sink.Write(title, fm, body, now)
		if err != nil {
			return err
		}
		path = p
		return nil
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 1 * time.Second
	eb.Multiplier = 2
	policy := backoff.WithMaxRetries(eb, MaxFlushAttempts-1)
	err := backoff.Retry(op, policy)
	return path, err
}

func (q *Queue) publishObservations(batch []domain.Event) {
	if q.beliefSink == nil || q.rules == nil {
		return
	}
	for _, evt := range batch {
		rule, ok := q.rules[evt.EventType]
		if !ok {
			continue
		}
		phase, vector, success, ok := rule(evt)
		if !ok {
			continue
		}
		q.beliefSink.Observe(phase, vector, success)
	}
}

// History returns a snapshot of recorded flushes, oldest first.
func (q *Queue) History() []BatchRecord {
	q.historyMu.Lock()
	defer q.historyMu.Unlock()
	out := make([]BatchRecord, len(q.history))
	copy(out, q.history)
	return out
}

// Pending returns the number of events currently awaiting flush.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func batchFrontMatter(batch []domain.Event, now time.Time) domain.FrontMatter {
	eventType := "batch_sync"
	if allSameType(batch) {
		eventType = batch[0].EventType
	}
	fm := domain.FrontMatter{}.
		Set("date", domain.FMString(now.Format("2006-01-02"))).
		Set("time", domain.FMString(now.Format("15:04:05"))).
		Set("event_type", domain.FMString(eventType)).
		Set("events_count", domain.FMInt(len(batch)))

	// A batch consisting entirely of error_resolution events carries its
	// error kind in frontmatter as error_type, error_category, and tags, so
	// a later Tier-2 lookup (which matches on tags/error_category, not
	// event_type) can find it by keyword without re-parsing the note body.
	if eventType == domain.EventErrorResolution {
		if last, ok := batch[len(batch)-1].Data.(domain.ErrorResolutionData); ok && last.Kind != "" {
			tags := search.ExtractKeywords(last.Error)
			fm = fm.Set("error_type", domain.FMString(last.Kind)).
				Set("error_category", domain.FMString(last.Kind)).
				Set("tags", domain.FMList(tags))
		}
	}
	return fm
}

func buildBatchNote(batch []domain.Event, now time.Time) (title, body string) {
	title = fmt.Sprintf("%d events", len(batch))
	if allSameType(batch) {
		title = batch[0].EventType
	}
	// Tier-1 filename matching looks for *debug-<keyword>-*.md; for a
	// single-type error_resolution batch the title must carry the extracted
	// error kind, with something trailing it, rather than the literal event
	// type string, or the note's eventual filename can never match that
	// pattern.
	if allSameType(batch) && batch[0].EventType == domain.EventErrorResolution {
		if last, ok := batch[len(batch)-1].Data.(domain.ErrorResolutionData); ok && last.Kind != "" {
			title = "debug-" + search.NormalizeErrorKeyword(last.Kind) + "-resolution"
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	for i, evt := range batch {
		fmt.Fprintf(&b, "## Event %d: %s\n\n%s\n\n", i+1, evt.EventType, evt.Data.Render())
	}
	return title, strings.TrimRight(b.String(), "\n") + "\n"
}

func allSameType(batch []domain.Event) bool {
	if len(batch) == 0 {
		return false
	}
	first := batch[0].EventType
	for _, e := range batch[1:] {
		if e.EventType != first {
			return false
		}
	}
	return true
}
