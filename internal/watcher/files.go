package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches a fixed set of files and emits debounced batches of
// changes.
type FileWatcher struct {
	opts    Options
	paths   []string
	watched map[string]bool

	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}

	mu      sync.RWMutex
	stopped bool
	dropped atomic.Uint64
}

// NewFileWatcher creates a watcher for paths. The files need not exist
// yet, but their directories must.
func NewFileWatcher(paths []string, opts Options) (*FileWatcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	opts = opts.WithDefaults()

	w := &FileWatcher{
		opts:      opts,
		watched:   make(map[string]bool, len(paths)),
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		if !w.watched[abs] {
			w.watched[abs] = true
			w.paths = append(w.paths, abs)
		}
	}

	if opts.ForcePolling {
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("watch_fsnotify_unavailable", slog.String("error", err.Error()))
		return w, nil
	}
	dirs := make(map[string]bool)
	for _, p := range w.paths {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.fsw = fsw
	return w, nil
}

// Start watches until ctx is cancelled or Stop is called. It blocks.
func (w *FileWatcher) Start(ctx context.Context) error {
	go w.forward(ctx)

	slog.Info("watch_started",
		slog.String("mode", w.Mode()),
		slog.Any("paths", w.paths),
		slog.Duration("debounce", w.opts.DebounceWindow))

	if w.fsw == nil {
		newPoller(w.opts.PollInterval, w.paths, w.debouncer.Add).run(ctx, w.stopCh)
		return w.exit(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return w.exit(ctx)
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *FileWatcher) exit(ctx context.Context) error {
	if ctx.Err() != nil {
		_ = w.Stop()
		return ctx.Err()
	}
	return nil
}

// handle converts an fsnotify event for a watched file.
func (w *FileWatcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.watched[path] {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}
	w.debouncer.Add(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
}

func (w *FileWatcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(batch) > 0 {
				w.emit(batch)
			}
		}
	}
}

func (w *FileWatcher) emit(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- batch:
	default:
		n := w.dropped.Add(1)
		slog.Warn("watch_event_buffer_full",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped", n))
	}
}

func (w *FileWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// Stop releases the watcher and closes its channels. Safe to call more
// than once.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of debounced batches.
func (w *FileWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors.
func (w *FileWatcher) Errors() <-chan error {
	return w.errors
}

// Mode returns "fsnotify" or "polling".
func (w *FileWatcher) Mode() string {
	if w.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// Paths returns the absolute paths being watched.
func (w *FileWatcher) Paths() []string {
	return append([]string(nil), w.paths...)
}

// Dropped returns the number of batches dropped because the consumer fell behind.
func (w *FileWatcher) Dropped() uint64 {
	return w.dropped.Load()
}
