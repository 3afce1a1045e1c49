package belief

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// JSONLLogger appends one JSON object per line to a file, creating parent
// directories on first use. Used for predictions_log.jsonl,
// prediction_ground_truth.jsonl, and coverage_trend.jsonl (spec.md §6).
type JSONLLogger struct {
	mu   sync.Mutex
	path string
}

// NewJSONLLogger returns a logger appending to path.
func NewJSONLLogger(path string) *JSONLLogger {
	return &JSONLLogger{path: path}
}

// Append marshals record and appends it as a single line. Failures are
// returned rather than swallowed. CoverageTrendLogger.Record passes them on;
// Tracker.Predict and Tracker.Update ignore them.
func (l *JSONLLogger) Append(record map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// CoverageTrendLogger appends coverage_trend.jsonl records: a narrow
// producer-side wrapper so callers don't hand-build the record shape.
type CoverageTrendLogger struct {
	logger *JSONLLogger
}

// NewCoverageTrendLogger returns a logger appending to path.
func NewCoverageTrendLogger(path string) *CoverageTrendLogger {
	return &CoverageTrendLogger{logger: NewJSONLLogger(path)}
}

// Record appends a single coverage-trend data point.
func (c *CoverageTrendLogger) Record(timestamp string, coveragePercent float64, totalLines, coveredLines int) error {
	return c.logger.Append(map[string]any{
		"timestamp":        timestamp,
		"coverage_percent": coveragePercent,
		"total_lines":      totalLines,
		"covered_lines":    coveredLines,
	})
}
