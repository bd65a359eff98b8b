// Package cmd provides the CLI commands for labsearch.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
	"github.com/Aman-CERP/labsearch/internal/logging"
	"github.com/Aman-CERP/labsearch/internal/profiling"
	"github.com/Aman-CERP/labsearch/pkg/version"
)

// Global flags.
var (
	workspaceFlag string
	dataDirFlag   string
	debugMode     bool

	loggingCleanup func()
	previousLogger *slog.Logger

	profileOpts profiling.Options
	profiler    *profiling.Session
)

// NewRootCmd creates the root command for the labsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labsearch",
		Short: "Semantic search over a research workspace",
		Long: `labsearch indexes the projects, tasks, notebook entries, references,
protocols, results and notes of a research workspace as embeddings, and
answers natural-language queries by meaning rather than keywords.

Run 'labsearch index' once, then 'labsearch search <query>', or start
'labsearch serve' to expose search to AI assistants over MCP.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetVersionTemplate("labsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "",
		"Workspace export (JSON or YAML) or the directory holding it")
	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "",
		"Directory for embeddings.db (default: .labsearch next to the workspace)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"Enable debug logging to stderr and ~/.labsearch/logs/")

	cmd.PersistentFlags().StringVar(&profileOpts.CPUPath, "profile-cpu", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&profileOpts.MemPath, "profile-mem", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.TracePath, "profile-trace", "", "Write an execution trace to this file")

	cmd.PersistentPreRunE = startLoggingAndProfiling
	cmd.PersistentPostRunE = stopLoggingAndProfiling

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newProvidersCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLoggingAndProfiling installs the file logger and starts any
// requested profiles.
func startLoggingAndProfiling(cmd *cobra.Command, args []string) error {
	if err := startLogging(cmd, args); err != nil {
		return err
	}
	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profiler = s
	}
	return nil
}

func stopLoggingAndProfiling(_ *cobra.Command, _ []string) error {
	err := stopProfiling()
	restoreLogging()
	return err
}

func stopProfiling() error {
	if profiler == nil {
		return nil
	}
	err := profiler.Stop()
	profiler = nil
	return err
}

// startLogging installs the file logger. The level comes from the
// workspace config when it loads; --debug overrides it.
func startLogging(cmd *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if cfg, err := loadConfig(); err == nil {
		logCfg.Level = cfg.Server.LogLevel
	}
	if cmd.Name() == "serve" {
		logCfg = logging.StdioSafeConfig(logCfg.Level)
	}
	if debugMode {
		logCfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		if debugMode {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		// Logging is best effort outside --debug.
		return nil
	}
	loggingCleanup = cleanup
	previousLogger = slog.Default()
	slog.SetDefault(logger)
	slog.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.Version))
	return nil
}

// restoreLogging closes the log file and reinstates the logger that was
// active before the command ran.
func restoreLogging() {
	if loggingCleanup == nil {
		return
	}
	if previousLogger != nil {
		slog.SetDefault(previousLogger)
		previousLogger = nil
	}
	loggingCleanup()
	loggingCleanup = nil
}

// Execute runs the root command and prints a failure to stderr.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, apperrors.FormatForCLI(err))
		_ = stopProfiling()
		restoreLogging()
	}
	return err
}
