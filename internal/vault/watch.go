package vault

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/positivef/udo-sync/internal/common/log"
)

// Watcher invalidates a Store's AllNotes cache whenever the vault's daily
// directories change on disk, covering the case spec.md §5 calls out: the
// vault is assumed not concurrently written by foreign processes, but if
// one does (a user editing notes directly in Obsidian, say) the next
// search should still see the new file rather than serve a stale listing
// until the next Write.
type Watcher struct {
	store *Store
	fsw   *fsnotify.Watcher
	done  chan struct{}
}

// NewWatcher starts watching root's daily-directory tree for creates,
// writes, removes, and renames. Watching is strictly an optimization: a
// failure to start it returns an error (left to the caller to log), and callers that
// don't need live invalidation can simply not call this and rely on
// Write's own InvalidateCache.
func NewWatcher(store *Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	root := filepath.Join(store.root, store.dailyDir)
	if err := addRecursive(fsw, root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{store: store, fsw: fsw, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := fsw.Add(root); err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := addRecursive(fsw, filepath.Join(root, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Watcher) run() {
	logger := log.WithComponent(log.GetLogger(), "vault")
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.store.InvalidateCache()
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(ev.Name); err != nil {
						logger.Warn(map[string]any{"error": err.Error(), "dir": ev.Name}, "vault watcher: failed to watch new daily directory")
					}
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn(map[string]any{"error": err.Error()}, "vault watcher: fsnotify error")
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
