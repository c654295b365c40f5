// Package watch runs remediation whenever the integration harness drops a
// new results artifact, so a long test session self-heals without anyone
// re-invoking the tool.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"remedy/internal/logging"
)

// Handler is invoked once per settled results artifact.
type Handler func(ctx context.Context, path string)

// Watcher monitors a results directory for results_*.json artifacts.
// Harnesses write artifacts in several chunks, so events are debounced:
// the handler fires only after a file has been quiet for the debounce
// window.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	resultsDir  string
	handler     Handler
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// New creates a watcher over the given results directory.
func New(resultsDir string, handler Handler) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		resultsDir:  resultsDir,
		handler:     handler,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine
// until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.resultsDir, 0755); err != nil {
		logging.Watch("Could not create results dir %s: %v", w.resultsDir, err)
	}
	if err := w.watcher.Add(w.resultsDir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Watch("Watching %s for results artifacts", w.resultsDir)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Watch("Error closing watcher: %v", err)
	}
	logging.Watch("Stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.WatchDebug("Context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Watch("Watcher error: %v", err)

		case <-ticker.C:
			w.fireSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isResultsArtifact(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	logging.WatchDebug("Artifact event: %s %s", event.Op, event.Name)
	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// fireSettled invokes the handler for artifacts whose last event is older
// than the debounce window.
func (w *Watcher) fireSettled(ctx context.Context) {
	now := time.Now()

	w.mu.Lock()
	var ready []string
	for path, last := range w.debounceMap {
		if now.Sub(last) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		logging.Watch("Artifact settled: %s", path)
		w.handler(ctx, path)
	}
}

func isResultsArtifact(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, "results_") && strings.HasSuffix(base, ".json")
}
