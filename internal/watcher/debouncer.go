package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer holds events until the window passes with no new event, then
// emits them as one batch. Events for the same path merge:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE drops the path
//   - DELETE then CREATE becomes MODIFY
//   - anything else keeps the latest operation
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	order   []string
	timer   *time.Timer
	stopped bool

	output chan []FileEvent
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []FileEvent, 10),
	}
}

// Add queues an event and restarts the window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	existing, ok := d.pending[event.Path]
	switch {
	case !ok:
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Operation}
		d.order = append(d.order, event.Path)
	default:
		merged, keep := merge(existing.firstOp, event)
		if keep {
			existing.event = merged
		} else {
			delete(d.pending, event.Path)
		}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// merge combines a later event with the first operation seen for its
// path. keep is false when the two cancel out.
func merge(first Operation, next FileEvent) (FileEvent, bool) {
	switch {
	case first == OpCreate && next.Operation == OpModify:
		next.Operation = OpCreate
	case first == OpCreate && next.Operation == OpDelete:
		return FileEvent{}, false
	case first == OpDelete && next.Operation == OpCreate:
		next.Operation = OpModify
	}
	return next, true
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		d.order = d.order[:0]
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, path := range d.order {
		if pe, ok := d.pending[path]; ok {
			batch = append(batch, pe.event)
			delete(d.pending, path)
		}
	}
	d.order = d.order[:0]

	select {
	case d.output <- batch:
	default:
		slog.Warn("watch_batch_dropped", slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel of debounced batches. Batches keep the order
// in which paths were first seen.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes the output channel. Safe to
// call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
