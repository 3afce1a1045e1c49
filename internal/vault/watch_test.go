package vault

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_InvalidatesOnExternalWrite(t *testing.T) {
	s, root := newTestStore(t)

	if err := os.MkdirAll(filepath.Join(root, s.dailyDir, "2026-07-31"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if _, err := s.AllNotes(); err != nil {
		t.Fatalf("AllNotes: %v", err)
	}

	w, err := NewWatcher(s)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	path := filepath.Join(root, s.dailyDir, "2026-07-31", "external-note.md")
	if err := os.WriteFile(path, []byte("---\n---\nbody"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.cacheMu.RLock()
		valid := s.cacheValid
		s.cacheMu.RUnlock()
		if !valid {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("cache was not invalidated after external write")
}

func TestWatcher_NonexistentRootIsNoop(t *testing.T) {
	s := New(Options{Root: filepath.Join(t.TempDir(), "missing")})
	w, err := NewWatcher(s)
	if err != nil {
		t.Fatalf("NewWatcher on missing root: %v", err)
	}
	defer w.Close()
}
