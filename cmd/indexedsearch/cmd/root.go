// Package cmd provides the CLI commands for indexedsearch.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/logging"
	"github.com/Aman-CERP/indexedsearch/internal/profiling"
	"github.com/Aman-CERP/indexedsearch/pkg/version"
)

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profile      *profiling.Session
)

// Global flags
var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the indexedsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexedsearch",
		Short: "Full-text search over a media record store",
		Long: `indexedsearch keeps a full-text index of media entries in sync with
the record store and answers free-text queries against it.

The index is created on first use. Run 'indexedsearch reconcile' to bring
it up to date, or 'indexedsearch serve' to keep it current while serving
queries over HTTP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("indexedsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a config file (default: indexedsearch.yaml in the working directory)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.indexedsearch/logs/")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newReconcileCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newMediaCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging installs the CLI logger and starts profiling
// when requested. Without --debug only warnings reach stderr so command
// output stays readable.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = "warn"
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	if debugMode {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Version))
	}

	opts := profiling.Options{CPU: profileCPU, Heap: profileMem, Trace: profileTrace}
	if opts.Enabled() {
		profile, err = profiling.Start(opts)
		if err != nil {
			return fmt.Errorf("failed to start profiling: %w", err)
		}
	}
	return nil
}

// stopProfilingAndLogging stops profiling, writing the heap profile if
// requested, and closes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profile != nil {
		err = profile.Stop()
		profile = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	if err != nil {
		return fmt.Errorf("failed to stop profiling: %w", err)
	}
	return nil
}

// Execute runs the root command and prints a failure the way the rest of
// the CLI formats errors.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.FormatForCLI(err))
	}
	return err
}
