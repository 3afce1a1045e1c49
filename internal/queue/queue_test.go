package queue

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/positivef/udo-sync/internal/common/clock"
	"github.com/positivef/udo-sync/internal/domain"
)

type fakeSink struct {
	mu     sync.Mutex
	writes []struct {
		title string
		fm    domain.FrontMatter
		body  string
	}
}

func (s *fakeSink) Write(title string, fm domain.FrontMatter, body string, _ time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, struct {
		title string
		fm    domain.FrontMatter
		body  string
	}{title, fm, body})
	return "note.md", nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func newTestQueue(window time.Duration) (*Queue, *fakeSink, *clock.MockClock) {
	sink := &fakeSink{}
	mc := &clock.MockClock{CurrentTime: time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)}
	q := New(Options{Window: window, Sink: sink, Clock: mc})
	return q, sink, mc
}

// A single sync_event is persisted once the coalescing window has passed.
func TestQueue_SingleEvent_FlushesAfterWindow(t *testing.T) {
	q, sink, _ := newTestQueue(20 * time.Millisecond)
	if err := q.SyncEvent("phase_transition", domain.PhaseTransitionData{From: "design", To: "mvp"}); err != nil {
		t.Fatalf("SyncEvent: %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	if got := sink.count(); got != 1 {
		t.Fatalf("writes=%d want 1", got)
	}
	fm := sink.writes[0].fm
	if fm.GetString("events_count") != "1" {
		t.Fatalf("events_count = %q want 1", fm.GetString("events_count"))
	}
}

func TestQueue_ThreeEventsWithinWindowBatch(t *testing.T) {
	q, sink, _ := newTestQueue(50 * time.Millisecond)
	q.SyncEvent("e1", domain.OpaqueData{"n": 1})
	time.Sleep(10 * time.Millisecond)
	q.SyncEvent("e2", domain.OpaqueData{"n": 2})
	time.Sleep(10 * time.Millisecond)
	q.SyncEvent("e3", domain.OpaqueData{"n": 3})

	time.Sleep(100 * time.Millisecond)

	if got := sink.count(); got != 1 {
		t.Fatalf("writes=%d want 1", got)
	}
	body := sink.writes[0].body
	// P5: strict enqueue order.
	i1 := strings.Index(body, "## Event 1: e1")
	i2 := strings.Index(body, "## Event 2: e2")
	i3 := strings.Index(body, "## Event 3: e3")
	if i1 < 0 || i2 < 0 || i3 < 0 || !(i1 < i2 && i2 < i3) {
		t.Fatalf("events out of order in body:\n%s", body)
	}
	if sink.writes[0].fm.GetString("events_count") != "3" {
		t.Fatalf("events_count = %q want 3", sink.writes[0].fm.GetString("events_count"))
	}
}

func TestQueue_ForceFlush_ReturnsCountAndIsIdempotent(t *testing.T) {
	q, sink, _ := newTestQueue(time.Hour)

	q.SyncEvent("e1", domain.OpaqueData{})
	if n := q.ForceFlush(); n != 1 {
		t.Fatalf("ForceFlush = %d want 1", n)
	}
	if got := sink.count(); got != 1 {
		t.Fatalf("writes=%d want 1", got)
	}

	n := q.ForceFlush()
	if n != 0 {
		t.Fatalf("ForceFlush on drained queue = %d want 0", n)
	}

	q.SyncEvent("e3", domain.OpaqueData{})
	n = q.ForceFlush()
	if n != 1 {
		t.Fatalf("ForceFlush = %d want 1", n)
	}
	if writes := sink.count(); writes != 2 {
		t.Fatalf("writes=%d want 2", writes)
	}

	n = q.ForceFlush()
	if n != 0 {
		t.Fatalf("ForceFlush on empty queue = %d want 0", n)
	}
}

func TestQueue_StopPerformsFinalFlushAndRejectsNewEvents(t *testing.T) {
	q, sink, _ := newTestQueue(time.Hour)
	q.SyncEvent("e1", domain.OpaqueData{})
	q.ForceFlush() // drain e1 so Stop's final flush only sees e2

	q.SyncEvent("e2", domain.OpaqueData{})
	n := q.Stop()
	if n != 1 {
		t.Fatalf("Stop flushed %d want 1", n)
	}

	if err := q.SyncEvent("e3", domain.OpaqueData{}); err != ErrShuttingDown {
		t.Fatalf("err = %v want ErrShuttingDown", err)
	}
	_ = sink
}

func TestQueue_ObservationsPublishedOnSuccessfulFlush(t *testing.T) {
	var observed []domain.Phase
	sink := &fakeSink{}
	mc := &clock.MockClock{CurrentTime: time.Now()}
	q := New(Options{
		Window: 10 * time.Millisecond,
		Sink:   sink,
		Clock:  mc,
		Rules: map[string]ObservationRule{
			"phase_transition": func(e domain.Event) (domain.Phase, domain.BeliefVector, bool, bool) {
				return domain.PhaseDesign, domain.BeliefVector{domain.DimensionTechnical: 0.5}, true, true
			},
		},
		BeliefSink: beliefSinkFunc(func(phase domain.Phase, _ domain.BeliefVector, _ bool) {
			observed = append(observed, phase)
		}),
	})

	q.SyncEvent("phase_transition", domain.PhaseTransitionData{From: "a", To: "b"})
	time.Sleep(40 * time.Millisecond)

	if len(observed) != 1 || observed[0] != domain.PhaseDesign {
		t.Fatalf("observed = %+v", observed)
	}
}

type beliefSinkFunc func(phase domain.Phase, vector domain.BeliefVector, success bool)

func (f beliefSinkFunc) Observe(phase domain.Phase, vector domain.BeliefVector, success bool) {
	f(phase, vector, success)
}

// An error_resolution batch's frontmatter must carry enough of the error's
// kind in tags/error_category (not just event_type) for the search engine's
// Tier-2 frontmatter matcher to find it later, and its title must embed the
// normalized kind for Tier-1 filename matching to succeed too.
func TestBatchFrontMatter_ErrorResolutionCarriesSearchableFields(t *testing.T) {
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	batch := []domain.Event{{
		EventType: domain.EventErrorResolution,
		Data: domain.ErrorResolutionData{
			Error:    "ModuleNotFoundError: No module named 'pandas'",
			Solution: "pip install pandas",
			Kind:     "ModuleNotFoundError",
		},
	}}

	fm := batchFrontMatter(batch, now)
	if fm.GetString("error_type") != "ModuleNotFoundError" {
		t.Errorf("error_type = %q, want ModuleNotFoundError", fm.GetString("error_type"))
	}
	if fm.GetString("error_category") != "ModuleNotFoundError" {
		t.Errorf("error_category = %q, want ModuleNotFoundError", fm.GetString("error_category"))
	}
	tags := fm.GetList("tags")
	found := false
	for _, tag := range tags {
		if tag == "pandas" {
			found = true
		}
	}
	if !found {
		t.Errorf("tags = %v, want to contain %q", tags, "pandas")
	}

	title, _ := buildBatchNote(batch, now)
	if !strings.Contains(strings.ToLower(title), "modulenotfound") {
		t.Errorf("title = %q, want to contain the normalized error kind", title)
	}
}
