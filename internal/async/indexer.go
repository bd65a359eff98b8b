// Package async runs indexing passes in the background for the long-lived
// commands (serve and watch).
package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/labsearch/internal/index"
	"github.com/Aman-CERP/labsearch/internal/store"
)

// Runner runs one indexing pass. *index.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, req index.Request) (*index.Report, error)
}

// Config configures an AutoIndexer.
type Config struct {
	// Runner performs the passes (required).
	Runner Runner

	// Store is checked for emptiness at startup (required).
	Store store.Store

	// Usable reports whether the configured provider can embed. Nil means yes.
	Usable func() bool

	// NoInitialPass disables the startup pass. Triggers still run.
	NoInitialPass bool
}

// Result describes the last background pass.
type Result struct {
	Report *index.Report
	Err    error
	Runs   int
}

// AutoIndexer serializes background passes on one goroutine. Triggers
// that arrive while a pass is queued are coalesced into it.
type AutoIndexer struct {
	cfg      Config
	triggers chan index.Trigger
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	running bool
	last    Result
}

// New creates an AutoIndexer.
func New(cfg Config) (*AutoIndexer, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Usable == nil {
		cfg.Usable = func() bool { return true }
	}
	return &AutoIndexer{
		cfg:      cfg,
		triggers: make(chan index.Trigger, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start launches the worker and schedules an initial pass when the store
// is empty and the provider is usable. Returns whether a pass was scheduled.
func (a *AutoIndexer) Start(ctx context.Context) (bool, error) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return false, nil
	}
	a.started = true
	a.mu.Unlock()

	go a.loop(ctx)

	return a.scheduleInitial(ctx)
}

// Recheck repeats the startup decision, for when the provider may have
// become usable since Start, such as after a config reload. It does
// nothing before Start or when the store already has records.
func (a *AutoIndexer) Recheck(ctx context.Context) (bool, error) {
	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if !started {
		return false, nil
	}
	return a.scheduleInitial(ctx)
}

func (a *AutoIndexer) scheduleInitial(ctx context.Context) (bool, error) {
	if a.cfg.NoInitialPass {
		return false, nil
	}
	meta, err := a.cfg.Store.Metadata(ctx)
	if err != nil {
		return false, err
	}
	if meta.TotalCount > 0 {
		return false, nil
	}
	if !a.cfg.Usable() {
		slog.Info("auto_index_skipped", slog.String("reason", "no usable provider"))
		return false, nil
	}

	slog.Info("auto_index_scheduled")
	return a.Trigger(index.TriggerAuto), nil
}

// Trigger queues a pass. It returns false when a pass is already queued.
func (a *AutoIndexer) Trigger(reason index.Trigger) bool {
	select {
	case a.triggers <- reason:
		return true
	default:
		slog.Debug("auto_index_coalesced", slog.String("trigger", string(reason)))
		return false
	}
}

// Running reports whether a background pass is executing.
func (a *AutoIndexer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Last returns the result of the most recent pass.
func (a *AutoIndexer) Last() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Stop cancels any pass in flight and waits for the worker to exit.
func (a *AutoIndexer) Stop() {
	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if !started {
		return
	}

	a.stopOnce.Do(func() { close(a.stopCh) })
	<-a.doneCh
}

func (a *AutoIndexer) loop(ctx context.Context) {
	defer close(a.doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		case reason := <-a.triggers:
			a.runOnce(ctx, reason, cancel)
		}
	}
}

func (a *AutoIndexer) runOnce(ctx context.Context, reason index.Trigger, cancel context.CancelFunc) {
	a.setRunning(true)
	defer a.setRunning(false)

	// Stop cancels the pass in flight.
	passDone := make(chan struct{})
	defer close(passDone)
	go func() {
		select {
		case <-a.stopCh:
			cancel()
		case <-passDone:
		}
	}()

	rep, err := a.cfg.Runner.Run(ctx, index.Request{Reason: reason})
	if errors.Is(err, index.ErrAlreadyRunning) {
		slog.Debug("auto_index_busy", slog.String("trigger", string(reason)))
		return
	}
	if err != nil {
		slog.Warn("auto_index_failed",
			slog.String("trigger", string(reason)),
			slog.String("error", err.Error()))
	}

	a.mu.Lock()
	a.last = Result{Report: rep, Err: err, Runs: a.last.Runs + 1}
	a.mu.Unlock()
}

func (a *AutoIndexer) setRunning(v bool) {
	a.mu.Lock()
	a.running = v
	a.mu.Unlock()
}
