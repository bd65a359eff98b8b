package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/labsearch/internal/embed"
	"github.com/Aman-CERP/labsearch/internal/index"
	"github.com/Aman-CERP/labsearch/internal/output"
	"github.com/Aman-CERP/labsearch/internal/ui"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	force    bool
	provider string
	prune    bool
	noTUI    bool
	noColor  bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed new and changed workspace items",
		Long: `Bring the index up to date with the workspace.

Only items whose text changed since the last run are embedded. Switching
the provider clears the store and rebuilds it, since vectors from
different models are not comparable.

Examples:
  labsearch index
  labsearch index --force
  labsearch index --provider static --no-tui
  labsearch index --prune`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Re-embed every item regardless of checksums")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Embedding provider for this run (default: from config)")
	cmd.Flags().BoolVar(&opts.prune, "prune", false, "Delete records whose items no longer exist")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Plain text progress instead of the interactive display")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
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

	req := index.Request{
		Force:  opts.force,
		Prune:  opts.prune,
		Reason: index.TriggerManual,
	}
	if opts.provider != "" {
		req.Provider = embed.ParseProviderID(opts.provider)
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(opts.noColor || ui.DetectNoColor()),
		ui.WithWorkspace(cfg.Workspace.Path),
	))
	req.Renderer = renderer

	if err := renderer.Start(ctx); err != nil {
		return err
	}
	rep, err := a.indexer.Run(ctx, req)
	if stopErr := renderer.Stop(); stopErr != nil {
		slog.Warn("renderer_stop_failed", slog.String("error", stopErr.Error()))
	}
	if err != nil {
		return err
	}

	if rep.Pruned > 0 {
		output.New(cmd.OutOrStdout()).Successf("Pruned %d records for deleted items", rep.Pruned)
	}
	return nil
}
