// Package watch follows the layout file the way the dashboard does: it reacts
// to every replacement of the file and re-reads it. It is used by the watch
// command and as a check that writers never expose a partial document.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"dashagent/internal/layout"
	"dashagent/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Change is delivered after the layout file settles.
type Change struct {
	Tabs    []string
	Added   []string
	Removed []string
	Deleted bool  // the file itself is gone
	Err     error // the file could not be parsed
	At      time.Time
}

// Stats counts watcher activity.
type Stats struct {
	Events      int
	Reloads     int
	ParseErrors int // a reader saw an unparseable document
	Errors      int
	LastEvent   time.Time
}

// LayoutWatcher watches one layout file.
type LayoutWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	path        string
	dir         string
	name        string
	debounceDur time.Duration
	pending     time.Time
	last        []string
	onChange    func(Change)
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// New creates a watcher for path. fsnotify watches the parent directory
// since atomic writers replace the file rather than writing into it.
func New(path string, debounce time.Duration, onChange func(Change)) (*LayoutWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	return &LayoutWatcher{
		watcher:     w,
		path:        abs,
		dir:         filepath.Dir(abs),
		name:        filepath.Base(abs),
		debounceDur: debounce,
		onChange:    onChange,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. It is non-blocking.
func (lw *LayoutWatcher) Start(ctx context.Context) error {
	lw.mu.Lock()
	if lw.running {
		lw.mu.Unlock()
		return nil
	}
	lw.running = true
	lw.mu.Unlock()

	if err := lw.watcher.Add(lw.dir); err != nil {
		lw.mu.Lock()
		lw.running = false
		lw.mu.Unlock()
		return err
	}
	if doc, err := layout.Load(lw.path); err == nil {
		lw.last = doc.Names()
	}
	logging.Watch("watching %s (debounce %v)", lw.path, lw.debounceDur)

	go lw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (lw *LayoutWatcher) Stop() {
	lw.mu.Lock()
	if !lw.running {
		lw.mu.Unlock()
		return
	}
	lw.running = false
	lw.mu.Unlock()

	close(lw.stopCh)
	<-lw.doneCh

	if err := lw.watcher.Close(); err != nil {
		logging.WatchError("error closing watcher: %v", err)
	}
	logging.Watch("stopped")
}

// Stats returns a copy of the counters.
func (lw *LayoutWatcher) Stats() Stats {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.stats
}

func (lw *LayoutWatcher) run(ctx context.Context) {
	defer close(lw.doneCh)

	tick := lw.debounceDur / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lw.stopCh:
			return

		case event, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			lw.handleEvent(event)

		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			logging.WatchError("watcher error: %v", err)
			lw.mu.Lock()
			lw.stats.Errors++
			lw.mu.Unlock()

		case <-ticker.C:
			lw.flush()
		}
	}
}

func (lw *LayoutWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != lw.name {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	logging.WatchDebug("%s %s", event.Op, event.Name)

	lw.mu.Lock()
	lw.stats.Events++
	lw.stats.LastEvent = time.Now()
	lw.pending = time.Now()
	lw.mu.Unlock()
}

// flush reloads the file once events have been quiet for the debounce window.
func (lw *LayoutWatcher) flush() {
	lw.mu.Lock()
	if lw.pending.IsZero() || time.Since(lw.pending) < lw.debounceDur {
		lw.mu.Unlock()
		return
	}
	lw.pending = time.Time{}
	prev := lw.last
	lw.mu.Unlock()

	change := Change{At: time.Now()}
	doc, err := lw.read()
	switch {
	case os.IsNotExist(err):
		change.Deleted = true
		change.Removed = prev
	case err != nil:
		change.Err = err
	default:
		change.Tabs = doc.Names()
		change.Added, change.Removed = diffNames(prev, change.Tabs)
	}

	lw.mu.Lock()
	lw.stats.Reloads++
	if change.Err != nil {
		lw.stats.ParseErrors++
	} else {
		lw.last = change.Tabs
	}
	lw.mu.Unlock()

	if change.Err != nil {
		logging.WatchError("reload %s: %v", lw.path, change.Err)
	} else {
		logging.Watch("reloaded %s: %d tab(s), +%d -%d", lw.path, len(change.Tabs), len(change.Added), len(change.Removed))
	}
	if lw.onChange != nil {
		lw.onChange(change)
	}
}

// read parses the file strictly: unlike layout.Load, a missing file is
// reported rather than replaced by the default document.
func (lw *LayoutWatcher) read() (*layout.Document, error) {
	data, err := os.ReadFile(lw.path)
	if err != nil {
		return nil, err
	}
	doc, _, err := layout.Parse(data)
	return doc, err
}

func diffNames(before, after []string) (added, removed []string) {
	for _, n := range after {
		if !slices.Contains(before, n) {
			added = append(added, n)
		}
	}
	for _, n := range before {
		if !slices.Contains(after, n) {
			removed = append(removed, n)
		}
	}
	return added, removed
}
