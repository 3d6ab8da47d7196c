package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexedsearch/internal/async"
	"github.com/Aman-CERP/indexedsearch/internal/logging"
	"github.com/Aman-CERP/indexedsearch/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the
search_media and index_status tools and the media://entries/{id}
resource. The index is reconciled at startup like 'serve'.

stdout carries JSON-RPC only; logs go to ~/.indexedsearch/logs/server.log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context(), logFile)
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "Log file (default: ~/.indexedsearch/logs/server.log)")

	return cmd
}

func runMCP(ctx context.Context, logFile string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.SetupMCPMode(level, logFile)
	if err != nil {
		return err
	}
	defer cleanup()
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("mcp_startup_failed", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("app_close_failed", slog.String("error", cerr.Error()))
		}
	}()

	sched := async.NewScheduler(async.SchedulerConfig{
		Interval: cfg.ReconcileIntervalDuration(),
		DataDir:  cfg.Index.Dir,
		Logger:   logger,
	}, a.reconciler.Reconcile)
	sched.Start(ctx)
	defer sched.Stop()

	srv, err := mcp.NewServer(a.search, a.index, a.records,
		mcp.WithStatus(sched.Status()), mcp.WithLogger(logger))
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}
