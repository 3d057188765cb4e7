package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period applied when none is configured.
const DefaultDebounce = 500 * time.Millisecond

// ChangeType classifies a filesystem change.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeWrite  ChangeType = "write"
	ChangeRemove ChangeType = "remove"
	ChangeRename ChangeType = "rename"
)

// ChangeEvent is the last change observed before the debounce window closed.
type ChangeEvent struct {
	Path       string
	ChangeType ChangeType
	// Count is the number of raw events coalesced into this one.
	Count int
}

// Option configures an FSWatcher.
type Option func(*FSWatcher)

// WithDebounce sets the quiet period before onChange fires.
func WithDebounce(d time.Duration) Option {
	return func(w *FSWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithFilter drops events whose path does not pass f.
func WithFilter(f *PatternFilter) Option {
	return func(w *FSWatcher) { w.filter = f }
}

// WithLogger sets the logger used for non-fatal watch errors.
func WithLogger(l *slog.Logger) Option {
	return func(w *FSWatcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// FSWatcher watches a directory tree (such as the agent todo directory) and
// reports debounced changes.
type FSWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	filter   *PatternFilter
	logger   *slog.Logger
	onChange func(ChangeEvent)

	mu      sync.Mutex
	last    ChangeEvent
	pending int
}

// NewFSWatcher creates a watcher that calls onChange once per burst of changes.
func NewFSWatcher(onChange func(ChangeEvent), opts ...Option) (*FSWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &FSWatcher{
		watcher:  fw,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Debounce returns the configured quiet period.
func (w *FSWatcher) Debounce() time.Duration { return w.debounce }

// WatchRecursive adds root and every directory below it.
func (w *FSWatcher) WatchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			return nil
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}

// Run blocks until ctx is cancelled or the underlying watcher closes.
// Watcher errors are logged and do not stop the loop.
func (w *FSWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	debouncer := NewDebouncer(w.debounce, w.fire)
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			ct := opToChangeType(event.Op)
			if ct == "" {
				continue
			}
			if ct == ChangeCreate {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.WatchRecursive(event.Name); err != nil {
						w.logger.Warn("watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if w.filter != nil && !w.filter.Matches(event.Name) {
				continue
			}
			w.record(ChangeEvent{Path: event.Name, ChangeType: ct})
			debouncer.Trigger()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *FSWatcher) record(e ChangeEvent) {
	w.mu.Lock()
	w.pending++
	w.last = e
	w.mu.Unlock()
}

func (w *FSWatcher) fire() {
	w.mu.Lock()
	e := w.last
	e.Count = w.pending
	w.pending = 0
	w.mu.Unlock()
	if w.onChange != nil && e.Count > 0 {
		w.onChange(e)
	}
}

func opToChangeType(op fsnotify.Op) ChangeType {
	switch {
	case op.Has(fsnotify.Create):
		return ChangeCreate
	case op.Has(fsnotify.Write):
		return ChangeWrite
	case op.Has(fsnotify.Remove):
		return ChangeRemove
	case op.Has(fsnotify.Rename):
		return ChangeRename
	default:
		return ""
	}
}
