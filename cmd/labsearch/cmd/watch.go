package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/labsearch/internal/async"
	"github.com/Aman-CERP/labsearch/internal/config"
	"github.com/Aman-CERP/labsearch/internal/index"
	"github.com/Aman-CERP/labsearch/internal/output"
	"github.com/Aman-CERP/labsearch/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var poll bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reindex whenever the workspace file changes",
		Long: `Watch the workspace export and run an incremental index after each
burst of changes. Changes that arrive during a run are coalesced into one
follow-up run. Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd, poll)
		},
	}

	cmd.Flags().BoolVar(&poll, "poll", false, "Poll the file instead of using filesystem notifications")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, poll bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	auto, err := newAutoIndexer(a)
	if err != nil {
		return err
	}
	if _, err := auto.Start(ctx); err != nil {
		return err
	}
	defer auto.Stop()

	out := output.New(cmd.OutOrStdout())
	out.Successf("Watching %s", cfg.Workspace.Path)

	return watchWorkspace(ctx, a, auto, poll, func(batch []watcher.FileEvent) {
		for _, ev := range batch {
			out.Infof("%s %s", ev.Operation, ev.Path)
		}
	})
}

// newAutoIndexer builds the background indexer for the long-lived
// commands. The startup pass follows indexing.auto_index.
func newAutoIndexer(a *app) (*async.AutoIndexer, error) {
	return async.New(async.Config{
		Runner:        a.indexer,
		Store:         a.store,
		Usable:        a.providerUsable,
		NoInitialPass: !a.cfg.Indexing.AutoIndex,
	})
}

// watchWorkspace queues a background pass for every debounced batch of
// workspace file changes. Changes to the workspace config reload API keys
// and repeat the initial-pass check. It blocks until ctx is done.
func watchWorkspace(ctx context.Context, a *app, auto *async.AutoIndexer,
	forcePolling bool, onBatch func([]watcher.FileEvent)) error {
	dir, _, err := configDir()
	if err != nil {
		return err
	}
	configFiles := map[string]bool{
		filepath.Join(dir, config.FileName):    true,
		filepath.Join(dir, config.AltFileName): true,
	}
	paths := []string{a.cfg.Workspace.Path}
	for p := range configFiles {
		paths = append(paths, p)
	}

	fw, err := watcher.NewFileWatcher(paths, watcher.Options{
		DebounceWindow: a.cfg.WatchDebounce(),
		ForcePolling:   forcePolling,
	})
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- fw.Start(ctx) }()

	errs := fw.Errors()
	for {
		select {
		case <-ctx.Done():
			_ = fw.Stop()
			<-done
			return nil
		case batch, ok := <-fw.Events():
			if !ok {
				if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}
			if onBatch != nil {
				onBatch(batch)
			}
			reload, reindex := false, false
			for _, ev := range batch {
				if configFiles[ev.Path] {
					reload = true
				} else {
					reindex = true
				}
			}
			if reload {
				recheckAutoIndex(ctx, a, auto)
			}
			if reindex {
				queued := auto.Trigger(index.TriggerWatch)
				slog.Info("watch_batch",
					slog.Int("events", len(batch)),
					slog.Bool("queued", queued))
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// recheckAutoIndex reloads API keys and schedules the initial pass if a
// usable key has appeared for an empty store.
func recheckAutoIndex(ctx context.Context, a *app, auto *async.AutoIndexer) {
	if err := a.reloadKeys(); err != nil {
		slog.Warn("config_reload_failed", slog.String("error", err.Error()))
		return
	}
	scheduled, err := auto.Recheck(ctx)
	if err != nil {
		slog.Warn("auto_index_recheck_failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("auto_index_rechecked", slog.Bool("scheduled", scheduled))
}
