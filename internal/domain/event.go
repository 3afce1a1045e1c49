// Package domain holds the pure value types shared across the sync core:
// events, notes, search results, and belief state. Pure value types, no
// external dependencies.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Well-known event type tags. Producers are not limited to these — any
// string is a valid event type — but the first four have typed EventData,
// and phase_transition, task_completion and error_resolution have a default
// observation rule (see coordinator.DefaultObservationRules).
const (
	EventPhaseTransition = "phase_transition"
	EventTaskCompletion  = "task_completion"
	EventErrorResolution = "error_resolution"
	EventGitCommit       = "git_commit"
	EventPeriodicBackup  = "periodic_backup"
	EventBatchSync       = "batch_sync"
)

// EventData is the payload carried by an Event. It is a small closed set of
// recognized shapes plus an Opaque fallback.
type EventData interface {
	// Render returns a human-readable rendering of the payload suitable for
	// embedding in a Note body section.
	Render() string
}

// PhaseTransitionData records a move from one development phase to another.
type PhaseTransitionData struct {
	From string
	To   string
}

func (d PhaseTransitionData) Render() string {
	return fmt.Sprintf("phase: %s -> %s", d.From, d.To)
}

// TaskCompletionData records the outcome of a unit of work.
type TaskCompletionData struct {
	TaskID  string
	Title   string
	Success bool
}

func (d TaskCompletionData) Render() string {
	status := "succeeded"
	if !d.Success {
		status = "failed"
	}
	return fmt.Sprintf("task %s (%s) %s", d.TaskID, d.Title, status)
}

// ErrorResolutionData records an error and the solution found for it.
type ErrorResolutionData struct {
	Error    string
	Solution string
	Context  string
	Kind     string
}

func (d ErrorResolutionData) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "error: %s\n\n", d.Error)
	if d.Context != "" {
		fmt.Fprintf(&b, "context: %s\n\n", d.Context)
	}
	fmt.Fprintf(&b, "## Solution\n\n%s", d.Solution)
	return b.String()
}

// GitCommitData records a single commit observed by the commit hook.
type GitCommitData struct {
	SHA     string
	Message string
	Author  string
}

func (d GitCommitData) Render() string {
	return fmt.Sprintf("commit %s by %s: %s", d.SHA, d.Author, d.Message)
}

// OpaqueData is the fallback shape for event types with no typed schema.
// Rendered as a generic key-value block, keys sorted for determinism.
type OpaqueData map[string]any

func (d OpaqueData) Render() string {
	if len(d) == 0 {
		return "(no data)"
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %v", k, d[k])
	}
	return b.String()
}

// Event is a semantically-typed record produced by sync_event. Created once,
// consumed exactly once at flush, never mutated after creation.
type Event struct {
	EventType  string
	Data       EventData
	EnqueuedAt time.Time
	IngestedAt time.Time
}

// NewEvent constructs an Event, validating that it carries a non-empty type.
func NewEvent(eventType string, data EventData, enqueuedAt, ingestedAt time.Time) (Event, error) {
	if strings.TrimSpace(eventType) == "" {
		return Event{}, fmt.Errorf("event type must not be empty")
	}
	if data == nil {
		data = OpaqueData{}
	}
	return Event{
		EventType:  eventType,
		Data:       data,
		EnqueuedAt: enqueuedAt,
		IngestedAt: ingestedAt,
	}, nil
}

// NewEventFromMap builds an Event from a raw event_type + untyped payload,
// dispatching to the typed EventData shape when the event_type is recognized
// and falling back to OpaqueData otherwise.
func NewEventFromMap(eventType string, raw map[string]any, enqueuedAt, ingestedAt time.Time) (Event, error) {
	data := dataFromMap(eventType, raw)
	return NewEvent(eventType, data, enqueuedAt, ingestedAt)
}

// DataFromMap dispatches a raw event_type + untyped payload to its typed
// EventData shape when recognized, falling back to OpaqueData otherwise.
// Exposed for callers (e.g. the sync coordinator) that need to convert a
// producer-supplied map before constructing an Event themselves.
func DataFromMap(eventType string, raw map[string]any) EventData {
	return dataFromMap(eventType, raw)
}

func dataFromMap(eventType string, raw map[string]any) EventData {
	switch eventType {
	case EventPhaseTransition:
		return PhaseTransitionData{From: str(raw, "from"), To: str(raw, "to")}
	case EventTaskCompletion:
		return TaskCompletionData{TaskID: str(raw, "task_id"), Title: str(raw, "title"), Success: boolean(raw, "success")}
	case EventErrorResolution:
		return ErrorResolutionData{
			Error:    str(raw, "error"),
			Solution: str(raw, "solution"),
			Context:  str(raw, "context"),
			Kind:     str(raw, "kind"),
		}
	case EventGitCommit:
		return GitCommitData{SHA: str(raw, "sha"), Message: str(raw, "message"), Author: str(raw, "author")}
	default:
		return OpaqueData(raw)
	}
}

func str(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func boolean(m map[string]any, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
