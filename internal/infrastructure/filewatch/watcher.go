// Package filewatch reloads artifacts when the files they come from change.
package filewatch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cartwise/backend/internal/logging"
)

// ReloadFunc is called after a watched file settles
type ReloadFunc func(ctx context.Context) error

// Watcher watches individual files and calls their reload function once
// writes stop for the debounce period. Directories are watched rather
// than files so atomic rename-over saves are seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	targets map[string]ReloadFunc // Keyed by cleaned absolute path
	dirs    map[string]bool
	timers  map[string]*time.Timer
	wg      sync.WaitGroup
}

// New creates a watcher. A non-positive debounce defaults to 500ms.
func New(debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		watcher:  w,
		debounce: debounce,
		targets:  make(map[string]ReloadFunc),
		dirs:     make(map[string]bool),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Add registers a file and its reload function. The file need not exist yet.
func (w *Watcher) Add(path string, reload ReloadFunc) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.dirs[dir] {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.targets[abs] = reload
	return nil
}

// Run processes file events until ctx is done
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.schedule(ctx, filepath.Clean(event.Name))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Msg("[WATCH] file watcher error")
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	reload, ok := w.targets[path]
	if !ok {
		return
	}
	if t, pending := w.timers[path]; pending && t.Stop() {
		t.Reset(w.debounce)
		return
	}

	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()

		w.mu.Lock()
		if w.timers[path] == timer {
			delete(w.timers, path)
		}
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err := reload(ctx); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("[WATCH] reload failed")
			return
		}
		logging.Info().Str("path", path).Msg("[WATCH] reloaded")
	})
	w.timers[path] = timer
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
}

// Close stops watching and waits for running reloads
func (w *Watcher) Close() error {
	w.stopTimers()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
