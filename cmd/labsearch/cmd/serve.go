package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/labsearch/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the Model Context Protocol server on stdin/stdout, exposing the
semantic_search, index_status and reindex tools.

When indexing.auto_index is set and the store is empty, the index is built
in the background. Searches during that first run return partial results.

Nothing but protocol messages is written to stdout. Logs go to
~/.labsearch/logs/labsearch.log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Also reindex when the workspace file changes")

	return cmd
}

func runServe(ctx context.Context, watch bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	preflightOnce(ctx, cfg)

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv, err := mcp.NewServer(mcp.Dependencies{
		Searcher:    a.searcher,
		Indexer:     a.indexer,
		Store:       a.store,
		Registry:    a.registry,
		KeyResolver: a.apiKey,
	})
	if err != nil {
		return err
	}

	auto, err := newAutoIndexer(a)
	if err != nil {
		return err
	}
	if _, err := auto.Start(ctx); err != nil {
		return err
	}
	defer auto.Stop()

	if watch {
		go func() {
			if err := watchWorkspace(ctx, a, auto, false, nil); err != nil {
				slog.Warn("serve_watch_failed", slog.String("error", err.Error()))
			}
		}()
	}

	return srv.Serve(ctx, cfg.Server.Transport)
}
