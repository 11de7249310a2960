package project

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches the projects directory and calls onChange with the project id
// whenever ingestion output under that project changes. Events are debounced per
// project so a burst of writes triggers one rebuild.
type Watcher struct {
	root        string
	onChange    func(projectID string)
	onRemove    func(projectID string)
	debounce    time.Duration
	logger      *slog.Logger
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides the debounce interval.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatcherLogger sets the logger used for watcher events.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher creates a watcher over root. onRemove may be nil.
func NewWatcher(root string, onChange, onRemove func(projectID string), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:        filepath.Clean(root),
		onChange:    onChange,
		onRemove:    onRemove,
		debounce:    defaultDebounce,
		logger:      slog.Default(),
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ReloadOnChange returns an onChange callback that rebuilds and publishes the
// project in registry using ctx for logging and cancellation.
func ReloadOnChange(ctx context.Context, registry *Registry) func(projectID string) {
	return func(projectID string) {
		if _, err := registry.Reload(ctx, projectID); err != nil {
			slog.Default().WarnContext(ctx, "project reload after change failed", "project_id", projectID, "error", err)
		}
	}
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true

	if err := w.addTreeLocked(w.root); err != nil {
		_ = w.watcher.Close()
		w.watcher = nil
		w.started = false
		w.mu.Unlock()
		return err
	}
	w.mu.Unlock()

	w.logger.DebugContext(ctx, "project watcher started", "root", w.root)
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and cancels pending callbacks.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		for key, t := range w.debounceMap {
			t.Stop()
			delete(w.debounceMap, key)
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("project watcher error", "error", err)
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	projectID, isProjectDir := w.projectFor(ev.Name)
	if projectID == "" {
		return
	}
	w.logger.Debug("project watcher event", "op", ev.Op.String(), "path", ev.Name, "project_id", projectID)

	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			if err := w.addTreeLocked(ev.Name); err != nil {
				w.logger.Warn("project watcher failed to add directory", "path", ev.Name, "error", err)
			}
			w.mu.Unlock()
		}
		w.schedule(projectID)
	case ev.Op.Has(fsnotify.Write), ev.Op.Has(fsnotify.Rename):
		w.schedule(projectID)
	case ev.Op.Has(fsnotify.Remove):
		if isProjectDir {
			w.cancel(projectID)
			if w.onRemove != nil {
				w.onRemove(projectID)
			}
			return
		}
		w.schedule(projectID)
	}
}

// projectFor maps a path under root to its project id. isProjectDir is true when
// path is the project directory itself.
func (w *Watcher) projectFor(path string) (projectID string, isProjectDir bool) {
	rel, err := filepath.Rel(w.root, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if strings.HasPrefix(parts[0], ".") {
		return "", false
	}
	return parts[0], len(parts) == 1
}

func (w *Watcher) schedule(projectID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	if t, ok := w.debounceMap[projectID]; ok {
		t.Stop()
	}
	w.debounceMap[projectID] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, projectID)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}
		w.onChange(projectID)
	})
}

func (w *Watcher) cancel(projectID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[projectID]; ok {
		t.Stop()
		delete(w.debounceMap, projectID)
	}
}

// addTreeLocked watches dir and all its subdirectories. Caller holds w.mu.
func (w *Watcher) addTreeLocked(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}
