package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/indexedsearch/internal/async"
	"github.com/Aman-CERP/indexedsearch/internal/config"
	"github.com/Aman-CERP/indexedsearch/internal/logging"
	"github.com/Aman-CERP/indexedsearch/internal/output"
	"github.com/Aman-CERP/indexedsearch/internal/web"
)

type serveOptions struct {
	addr  string
	watch bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search over HTTP and keep the index in sync",
		Long: `Start the HTTP search endpoint. The index is reconciled with the record
store at startup and, when index.reconcile_interval is set, periodically
afterwards. SIGHUP triggers an extra pass.

Search settings (users_only, link_style, user_header) are reloaded when
the config file changes.

Endpoints:
  GET /search?q=...&page=N&per_page=N
  GET /stats
  GET /healthz
  GET /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default: server.addr from config)")
	cmd.Flags().BoolVar(&opts.watch, "watch-config", true, "Reload search settings when the config file changes")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !debugMode {
		slog.SetDefault(logging.New(os.Stderr, cfg.Server.LogLevel))
	}
	logger := slog.Default()

	addr := opts.addr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
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

	srv := web.NewServer(a.search, a.index, web.SettingsFrom(cfg),
		web.WithLogger(logger), web.WithStatus(sched.Status()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, addr) })

	if path := resolvedConfigPath(); opts.watch && path != "" {
		w, err := config.NewWatcher(path, cfg, logger)
		if err != nil {
			logger.Warn("config_watch_disabled", slog.String("error", err.Error()))
		} else {
			w.OnChange(func(c *config.Config) { srv.Apply(web.SettingsFrom(c)) })
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.Info("reconcile_requested", slog.String("signal", "SIGHUP"))
				sched.Trigger()
			}
		}
	})

	output.New(cmd.OutOrStdout()).Successf("Serving %s index on http://%s", a.index.Backend(), addr)
	return g.Wait()
}
