// Package index keeps the vector store in sync with the workspace.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/embed"
	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
	"github.com/Aman-CERP/labsearch/internal/store"
	"github.com/Aman-CERP/labsearch/internal/ui"
)

// DefaultBatchSize is the number of items embedded and stored per sub-batch.
const DefaultBatchSize = 20

// ErrAlreadyRunning is returned when another run holds the index, in this
// process or another one.
var ErrAlreadyRunning = errors.New("indexing already in progress")

// Dependencies holds the orchestrator's collaborators.
type Dependencies struct {
	// Store persists the records (required).
	Store store.Store

	// Source supplies the workspace (required).
	Source content.Source

	// Registry resolves provider ids (required).
	Registry *embed.Registry

	// KeyResolver returns the API key for a provider. Nil means no keys.
	KeyResolver func(embed.ProviderID) string

	// LockPath is the cross-process lock file. Empty disables it.
	LockPath string

	// BatchSize is the sub-batch size (default: 20).
	BatchSize int
}

// Request configures one run.
type Request struct {
	// Force re-embeds every item regardless of checksums.
	Force bool

	// Provider overrides the registry default.
	Provider embed.ProviderID

	// Reason is recorded on the status and report (default: manual).
	Reason Trigger

	// Prune deletes records whose items no longer exist.
	Prune bool

	// OnProgress receives (current, total) after every sub-batch.
	OnProgress func(current, total int)

	// Renderer displays progress. Optional.
	Renderer ui.Renderer
}

// Orchestrator runs indexing passes. At most one run is active per data
// directory.
type Orchestrator struct {
	store     store.Store
	source    content.Source
	registry  *embed.Registry
	keys      func(embed.ProviderID) string
	lock      *FileLock
	batchSize int
	now       func() time.Time

	running atomic.Bool

	mu     sync.RWMutex
	status Status
}

// New creates an orchestrator and seeds its status from the store state.
func New(deps Dependencies) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	o := &Orchestrator{
		store:     deps.Store,
		source:    deps.Source,
		registry:  deps.Registry,
		keys:      deps.KeyResolver,
		batchSize: deps.BatchSize,
		now:       time.Now,
		status:    Status{State: StateIdle},
	}
	if o.keys == nil {
		o.keys = func(embed.ProviderID) string { return "" }
	}
	if o.batchSize <= 0 {
		o.batchSize = DefaultBatchSize
	}
	if deps.LockPath != "" {
		o.lock = NewFileLock(deps.LockPath)
	}

	ctx := context.Background()
	if p, err := o.store.GetState(ctx, store.StateKeyProvider); err == nil {
		o.status.Provider = embed.ProviderID(p)
	}
	if ts, err := o.store.GetState(ctx, store.StateKeyLastIndexed); err == nil && ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			o.status.LastIndexed = t
		}
	}
	if id, err := o.store.GetState(ctx, store.StateKeyLastRunID); err == nil {
		o.status.RunID = id
	}
	return o, nil
}

// Status returns a snapshot of the current state.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// Running reports whether a run is in progress in this process.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Run performs one indexing pass. It returns ErrAlreadyRunning without
// side effects when another run is active. On failure the partial report
// is returned with the error; records stored before the failure are kept.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer o.running.Store(false)

	if o.lock != nil {
		acquired, err := o.lock.TryLock()
		if err != nil {
			return nil, apperrors.StorageError("failed to lock index", err)
		}
		if !acquired {
			return nil, ErrAlreadyRunning
		}
		defer func() {
			if err := o.lock.Unlock(); err != nil {
				slog.Warn("index_lock_release_failed", slog.String("error", err.Error()))
			}
		}()
	}

	if req.Reason == "" {
		req.Reason = TriggerManual
	}
	target := req.Provider
	if target == "" {
		target = o.registry.DefaultID()
	}

	start := o.now()
	rep := &Report{
		RunID:    uuid.NewString(),
		Provider: target,
		Trigger:  req.Reason,
	}
	o.begin(rep)

	err := o.run(ctx, req, rep, start)
	rep.Duration = o.now().Sub(start)
	o.finish(rep, err)

	if err != nil {
		if req.Renderer != nil {
			req.Renderer.AddError(ui.ErrorEvent{Err: err})
		}
		slog.Warn("index_failed",
			slog.String("run_id", rep.RunID),
			slog.String("provider", string(target)),
			slog.String("trigger", string(rep.Trigger)),
			slog.Int("embedded", rep.Embedded),
			slog.Int("failed", rep.Failed),
			slog.String("error", err.Error()))
		return rep, err
	}

	slog.Info("index_complete",
		slog.String("run_id", rep.RunID),
		slog.String("provider", string(target)),
		slog.String("trigger", string(rep.Trigger)),
		slog.Int("total", rep.Total),
		slog.Int("embedded", rep.Embedded),
		slog.Int("failed", rep.Failed),
		slog.Int("skipped", rep.Skipped),
		slog.Int("cleared", rep.Cleared),
		slog.Int("pruned", rep.Pruned),
		slog.Int64("duration_ms", rep.Duration.Milliseconds()))
	return rep, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, rep *Report, start time.Time) error {
	p, key, err := o.resolve(rep.Provider)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stored, err := o.store.GetState(ctx, store.StateKeyProvider)
	if err != nil {
		return err
	}
	storedModel, err := o.store.GetState(ctx, store.StateKeyModel)
	if err != nil {
		return err
	}
	meta, err := o.store.Metadata(ctx)
	if err != nil {
		return err
	}
	model := embed.ModelOf(p)

	force := req.Force
	if meta.TotalCount > 0 && switched(stored, storedModel, rep.Provider, model) {
		slog.Info("provider_switch",
			slog.String("from", stored),
			slog.String("to", string(rep.Provider)),
			slog.String("from_model", storedModel),
			slog.String("to_model", model),
			slog.Int("records", meta.TotalCount))
		if err := o.store.ClearAll(ctx); err != nil {
			return err
		}
		rep.Cleared = meta.TotalCount
		rep.Trigger = TriggerProviderSwitch
		o.setTrigger(TriggerProviderSwitch)
		force = true
		stored, storedModel = "", ""
	}

	timing := ui.StageTimings{}
	stageStart := o.now()
	o.render(req, ui.ProgressEvent{Stage: ui.StageExtracting, Message: "Reading workspace"})

	items, err := content.Collect(ctx, o.source)
	if err != nil {
		return err
	}
	rep.Total = len(items)
	timing.Extract = o.now().Sub(stageStart)

	stageStart = o.now()
	o.render(req, ui.ProgressEvent{Stage: ui.StageDiffing, Total: len(items)})
	sums, err := o.store.Checksums(ctx)
	if err != nil {
		return err
	}

	todo := make([]content.Item, 0, len(items))
	for _, item := range items {
		var existing *store.Record
		if sum, ok := sums[item.ID]; ok {
			existing = &store.Record{ID: item.ID, Checksum: sum}
		}
		if NeedsReindex(item, existing, force) {
			todo = append(todo, item)
		}
	}
	rep.Skipped = len(items) - len(todo)

	if req.Prune {
		pruned, err := o.prune(ctx, items)
		if err != nil {
			return err
		}
		rep.Pruned = pruned
	}
	timing.Diff = o.now().Sub(stageStart)

	if len(todo) > 0 {
		if stored != string(rep.Provider) {
			if err := o.store.SetState(ctx, store.StateKeyProvider, string(rep.Provider)); err != nil {
				return err
			}
		}
		if model != "" && storedModel != model {
			if err := o.store.SetState(ctx, store.StateKeyModel, model); err != nil {
				return err
			}
		}

		stageStart = o.now()
		if err := o.embed(ctx, req, rep, p, key, todo); err != nil {
			return err
		}
		timing.Embed = o.now().Sub(stageStart)
	}

	if err := o.commit(ctx, rep); err != nil {
		return err
	}

	if req.Renderer != nil {
		info := ui.EmbedderInfo{Provider: string(p.ID()), Model: model, Dimensions: p.Dimensions()}
		req.Renderer.Complete(ui.CompletionStats{
			Items:    rep.Total,
			Embedded: rep.Embedded,
			Failed:   rep.Failed,
			Skipped:  rep.Skipped,
			Cleared:  rep.Cleared,
			Duration: o.now().Sub(start),
			Stages:   timing,
			Embedder: info,
		})
	}
	return nil
}

// switched reports whether the store's vectors came from a different
// provider or model than the target. A store without a recorded model
// only switches on provider.
func switched(stored, storedModel string, target embed.ProviderID, model string) bool {
	if stored == "" {
		return false
	}
	if embed.ProviderID(stored) != target {
		return true
	}
	return storedModel != "" && storedModel != model
}

// embed embeds todo in sub-batches, storing each sub-batch's vectors
// before the next one starts.
func (o *Orchestrator) embed(ctx context.Context, req Request, rep *Report, p embed.Provider, key string, todo []content.Item) error {
	total := len(todo)
	o.setProgress(0, total, 0, 0)

	for start := 0; start < total; start += o.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+o.batchSize, total)
		batch := todo[start:end]
		texts := make([]string, len(batch))
		for i, item := range batch {
			texts[i] = item.Text
		}

		vecs, err := p.EmbedBatch(ctx, key, texts, nil)
		if err != nil {
			if embed.IsSystemic(err) {
				return err
			}
			slog.Warn("index_batch_failed",
				slog.Int("start", start),
				slog.Int("size", len(batch)),
				slog.String("error", err.Error()))
			vecs = nil
		}

		records := make([]store.Record, 0, len(batch))
		failed := 0
		for i, item := range batch {
			var vec []float32
			if i < len(vecs) {
				vec = vecs[i]
			}
			if len(vec) == 0 {
				failed++
				continue
			}
			records = append(records, store.Record{
				ID:          item.ID,
				ContentType: item.ContentType,
				ContentID:   item.ContentID,
				ProjectID:   item.ProjectID,
				Title:       item.Title,
				Text:        item.Text,
				Checksum:    Checksum(item.Text),
				Vector:      vec,
				Provider:    string(p.ID()),
			})
		}

		if len(records) > 0 {
			if err := o.store.UpsertBatch(ctx, records); err != nil {
				return err
			}
		}
		rep.Embedded += len(records)
		rep.Failed += failed

		if failed > 0 && req.Renderer != nil {
			req.Renderer.AddError(ui.ErrorEvent{
				Item:   batch[0].ID,
				Err:    fmt.Errorf("%d of %d items in sub-batch failed to embed", failed, len(batch)),
				IsWarn: true,
			})
		}

		o.setProgress(end, total, rep.Embedded, rep.Failed)
		if req.OnProgress != nil {
			req.OnProgress(end, total)
		}
		o.render(req, ui.ProgressEvent{
			Stage:   ui.StageEmbedding,
			Current: end,
			Total:   total,
			Item:    batch[len(batch)-1].ID,
		})
	}

	if rep.Failed > 0 {
		slog.Warn("index_items_failed",
			slog.String("provider", string(rep.Provider)),
			slog.String("summary", rep.Summary()))
	}
	return nil
}

// resolve returns the provider and API key for id, or a configuration error.
func (o *Orchestrator) resolve(id embed.ProviderID) (embed.Provider, string, error) {
	p, err := o.registry.Get(id)
	if err != nil {
		return nil, "", err
	}
	if !p.SupportsEmbeddings() {
		return nil, "", embed.UnsupportedError(id)
	}
	key := o.keys(id)
	if embed.NeedsAPIKey(id) && key == "" {
		return nil, "", embed.MissingKeyError(id)
	}
	return p, key, nil
}

// prune deletes records whose ids are not among items.
func (o *Orchestrator) prune(ctx context.Context, items []content.Item) (int, error) {
	ids, err := o.store.IDs(ctx)
	if err != nil {
		return 0, err
	}
	live := make(map[string]struct{}, len(items))
	for _, item := range items {
		live[item.ID] = struct{}{}
	}
	var stale []string
	for _, id := range ids {
		if _, ok := live[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	n, err := o.store.DeleteByIDs(ctx, stale)
	if err != nil {
		return 0, err
	}
	slog.Info("index_pruned", slog.Int("count", n))
	return n, nil
}

// commit records the run bookkeeping in the store state.
func (o *Orchestrator) commit(ctx context.Context, rep *Report) error {
	now := o.now().UTC()
	if err := o.store.SetState(ctx, store.StateKeyLastIndexed, now.Format(time.RFC3339Nano)); err != nil {
		return err
	}
	if err := o.store.SetState(ctx, store.StateKeyLastRunID, rep.RunID); err != nil {
		return err
	}

	o.mu.Lock()
	o.status.LastIndexed = now
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) render(req Request, event ui.ProgressEvent) {
	if req.Renderer != nil {
		req.Renderer.UpdateProgress(event)
	}
}

func (o *Orchestrator) begin(rep *Report) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = Status{
		State:       StateIndexing,
		Trigger:     rep.Trigger,
		Provider:    rep.Provider,
		LastIndexed: o.status.LastIndexed,
		RunID:       rep.RunID,
	}
}

func (o *Orchestrator) finish(rep *Report, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Embedded = rep.Embedded
	o.status.Failed = rep.Failed
	if err != nil {
		o.status.State = StateError
		o.status.LastError = err.Error()
		return
	}
	o.status.State = StateComplete
	o.status.LastError = ""
}

func (o *Orchestrator) setTrigger(t Trigger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Trigger = t
}

func (o *Orchestrator) setProgress(current, total, embedded, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Current = current
	o.status.Total = total
	o.status.Embedded = embedded
	o.status.Failed = failed
}
