// Package watch observes the repository for file changes and reports them
// debounced, so editor save bursts collapse into one notification per file.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

// Change is one debounced file change, with a repo-relative slash path.
type Change struct {
	Path string
	Op   string
}

// Handler receives debounced changes. Called from the watcher goroutine.
type Handler func(Change)

var ignoredDirs = []string{".git/", ".hg/", ".svn/", "node_modules/", ".repolens/"}

// Watcher tails filesystem notifications under one root.
type Watcher struct {
	root    string
	handler Handler

	mu       sync.Mutex
	debounce time.Duration
	events   chan notify.EventInfo
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(root string, debounce time.Duration, handler Handler) *Watcher {
	return &Watcher{
		root:     root,
		debounce: debounce,
		handler:  handler,
	}
}

// SetDebounce adjusts the debounce window for subsequent flushes.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

func (w *Watcher) getDebounce() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.debounce
}

// Start begins watching recursively. Idempotent; pair with Stop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.events != nil {
		return nil
	}

	events := make(chan notify.EventInfo, 128)
	if err := notify.Watch(filepath.Join(w.root, "..."), events, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return err
	}
	w.events = events

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(ctx, events)
	slog.Info("watcher started", "root", w.root)
	return nil
}

// Stop detaches from the filesystem and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	events := w.events
	cancel := w.cancel
	done := w.done
	w.events = nil
	w.cancel = nil
	w.mu.Unlock()

	if events == nil {
		return
	}
	notify.Stop(events)
	cancel()
	<-done
	slog.Info("watcher stopped", "root", w.root)
}

// Active reports whether the watcher is attached.
func (w *Watcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.events != nil
}

// run collects raw notifications and flushes them one debounce window after
// the first pending event. Later ops on the same path win; a create followed
// by a remove reports the remove.
func (w *Watcher) run(ctx context.Context, events chan notify.EventInfo) {
	defer close(w.done)

	pending := map[string]string{}
	var flush <-chan time.Time

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			rel, ok := w.relPath(ev.Path())
			if !ok {
				continue
			}
			pending[rel] = opString(ev.Event())
			if flush == nil {
				flush = time.After(w.getDebounce())
			}

		case <-flush:
			flush = nil
			for path, op := range pending {
				w.handler(Change{Path: path, Op: op})
			}
			pending = map[string]string{}

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) relPath(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, dir := range ignoredDirs {
		if strings.HasPrefix(rel, dir) {
			return "", false
		}
	}
	return rel, true
}

func opString(e notify.Event) string {
	switch e {
	case notify.Create:
		return "create"
	case notify.Write:
		return "write"
	case notify.Remove:
		return "remove"
	case notify.Rename:
		return "rename"
	default:
		return "write"
	}
}
