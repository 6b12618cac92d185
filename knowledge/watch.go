package knowledge

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/teilomillet/supportdesk/utils"
)

// WatchedStore caches the last successful Load of a Store and drops the cache
// whenever anything in the directory changes.
//
// The watch follows the directory path, not the inode: when the directory is
// removed or renamed away, loads bypass the cache until a directory exists at
// the path again and is being watched. Once the watcher stops, every Load
// reads the directory.
type WatchedStore struct {
	store   *Store
	dir     string
	logger  utils.Logger
	watcher *fsnotify.Watcher

	mu         sync.RWMutex
	docs       []Document
	cached     bool
	generation uint64
	// unwatched is set while the path has no live watch.
	unwatched bool
	closed    bool

	done chan struct{}
}

// NewWatchedStore starts watching store's directory until ctx is cancelled or
// Close is called. When the directory does not exist there is nothing to
// watch, and every Load falls through to the underlying store.
func NewWatchedStore(ctx context.Context, store *Store, logger utils.Logger) (*WatchedStore, error) {
	w := &WatchedStore{
		store:  store,
		dir:    filepath.Clean(store.Dir()),
		logger: logger,
		done:   make(chan struct{}),
	}

	if _, err := os.Stat(w.dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Knowledge base directory missing, caching disabled", "dir", w.dir)
			w.closed = true
			close(w.done)
			return w, nil
		}
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return nil, err
	}
	w.watcher = watcher

	go w.run(ctx)
	return w, nil
}

func (w *WatchedStore) run(ctx context.Context) {
	defer close(w.done)
	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debug("Knowledge base changed", "file", event.Name, "op", event.Op.String())
			if filepath.Clean(event.Name) == w.dir && event.Op.Has(fsnotify.Remove|fsnotify.Rename) {
				w.lost()
				continue
			}
			w.invalidate()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Knowledge base watcher error", "error", err)
			w.invalidate()
		}
	}
}

// lost handles the watched directory itself going away, as in a deploy that
// swaps in a new directory by rename.
func (w *WatchedStore) lost() {
	w.mu.Lock()
	w.unwatched = true
	w.docs = nil
	w.cached = false
	w.generation++
	w.mu.Unlock()

	// The old watch may follow the moved inode; drop it before re-adding.
	_ = w.watcher.Remove(w.dir)
	w.logger.Warn("Knowledge base directory replaced or removed, re-watching", "dir", w.dir)
	w.rewatch()
}

// rewatch tries to watch the directory path again and reports whether the
// cache may be used.
func (w *WatchedStore) rewatch() bool {
	if err := w.watcher.Add(w.dir); err != nil {
		w.logger.Debug("Knowledge base directory not watchable yet", "dir", w.dir, "error", err)
		return false
	}
	w.mu.Lock()
	w.unwatched = false
	// Changes between the swap and the new watch went unseen.
	w.docs = nil
	w.cached = false
	w.generation++
	w.mu.Unlock()
	return true
}

func (w *WatchedStore) stop() {
	w.mu.Lock()
	w.closed = true
	w.docs = nil
	w.cached = false
	w.mu.Unlock()
}

func (w *WatchedStore) invalidate() {
	w.mu.Lock()
	w.docs = nil
	w.cached = false
	w.generation++
	w.mu.Unlock()
}

// Load returns the cached snapshot, reloading it after any change. The
// returned slice is shared between callers and must not be modified.
func (w *WatchedStore) Load() ([]Document, error) {
	w.mu.RLock()
	closed, unwatched := w.closed, w.unwatched
	w.mu.RUnlock()
	if closed || (unwatched && !w.rewatch()) {
		return w.store.Load()
	}

	w.mu.RLock()
	if w.cached {
		docs := w.docs
		w.mu.RUnlock()
		return docs, nil
	}
	gen := w.generation
	w.mu.RUnlock()

	docs, err := w.store.Load()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	// A change that landed while reading leaves the cache empty.
	if w.generation == gen && !w.closed && !w.unwatched {
		w.docs = docs
		w.cached = true
	}
	w.mu.Unlock()
	return docs, nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *WatchedStore) Close() error {
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}
