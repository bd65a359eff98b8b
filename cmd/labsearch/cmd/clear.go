package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/labsearch/internal/output"
)

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored embedding",
		Long: `Delete every stored embedding and the recorded provider. The next
'labsearch index' rebuilds the store from scratch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if !yes {
				out.Warning("This deletes every stored embedding. Re-run with --yes to confirm.")
				return nil
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			meta, err := a.store.Metadata(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.store.ClearAll(cmd.Context()); err != nil {
				return err
			}

			slog.Info("store_cleared", slog.Int("records", meta.TotalCount))
			out.Successf("Cleared %d records from %s", meta.TotalCount, cfg.DBPath())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the deletion")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <content-id>",
		Short: "Delete the embeddings of one item",
		Long: `Delete every stored embedding for a content id, for example after the
item was removed from the workspace. Items sharing an id across content
types are all deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.store.DeleteByContentID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if n == 0 {
				out.Warningf("No records found for %q", args[0])
				return nil
			}
			slog.Info("records_deleted", slog.String("content_id", args[0]), slog.Int("count", n))
			out.Success(fmt.Sprintf("Deleted %d %s for %q", n, recordsWord(n), args[0]))
			return nil
		},
	}
	return cmd
}

func recordsWord(n int) string {
	if n == 1 {
		return "record"
	}
	return "records"
}
