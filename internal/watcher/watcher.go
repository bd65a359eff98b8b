// Package watcher reports changes to the workspace export and its
// config file, debounced so that one editor save triggers one reindex.
//
// fsnotify is used when available. Each watched file's parent directory
// is watched so that editors which save by rename are still seen. When
// fsnotify cannot start, the watcher polls file modification times.
package watcher

import (
	"time"
)

// Operation is the kind of change seen on a watched file.
type Operation int

const (
	// OpCreate means the file appeared.
	OpCreate Operation = iota
	// OpModify means the file's contents changed.
	OpModify
	// OpDelete means the file was removed or renamed away.
	OpDelete
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change to a watched file.
type FileEvent struct {
	// Path is the absolute path of the watched file.
	Path string

	Operation Operation
	Timestamp time.Time
}

// Options configures a FileWatcher.
type Options struct {
	// DebounceWindow is how long the watcher waits for quiet before
	// emitting a batch. Default: 500ms.
	DebounceWindow time.Duration

	// PollInterval is the polling period when fsnotify is unavailable.
	// Default: 2s.
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	// Default: 16.
	EventBufferSize int

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    2 * time.Second,
		EventBufferSize: 16,
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}
