package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event. Used for pipes, CI and --no-tui.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	stage  Stage
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = event.Stage

	msg := event.Message
	if msg == "" {
		msg = event.Item
	}

	switch {
	case event.Total > 0 && msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d\n", event.Stage.Icon(), event.Current, event.Total)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.Item != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Item, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = StageComplete
	_, _ = fmt.Fprintf(r.out, "Complete: %d of %d embedded, %d unchanged in %s",
		stats.Embedded, stats.Embedded+stats.Failed, stats.Skipped, stats.Duration.Round(100*time.Millisecond))
	if stats.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed)", stats.Failed)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Cleared > 0 {
		_, _ = fmt.Fprintf(r.out, "Cleared %d records from the previous provider\n", stats.Cleared)
	}

	if stats.Stages.Embed > 0 && stats.Embedded > 0 {
		perSec := float64(stats.Embedded) / stats.Stages.Embed.Seconds()
		_, _ = fmt.Fprintf(r.out, "  Extract: %s\n", stats.Stages.Extract.Round(time.Millisecond))
		_, _ = fmt.Fprintf(r.out, "  Diff:    %s\n", stats.Stages.Diff.Round(time.Millisecond))
		_, _ = fmt.Fprintf(r.out, "  Embed:   %s (%.1f items/sec)\n", stats.Stages.Embed.Round(100*time.Millisecond), perSec)
	}

	if stats.Embedder.Provider != "" {
		_, _ = fmt.Fprintf(r.out, "Provider: %s", stats.Embedder.Provider)
		if stats.Embedder.Model != "" {
			_, _ = fmt.Fprintf(r.out, " (%s, %d dims)", stats.Embedder.Model, stats.Embedder.Dimensions)
		}
		_, _ = fmt.Fprintln(r.out)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
