package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Aman-CERP/indexedsearch/internal/config"
	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/index"
	"github.com/Aman-CERP/indexedsearch/internal/media"
	"github.com/Aman-CERP/indexedsearch/internal/metrics"
	"github.com/Aman-CERP/indexedsearch/internal/recordstore"
	"github.com/Aman-CERP/indexedsearch/internal/search"
	"github.com/Aman-CERP/indexedsearch/internal/store"
	"github.com/Aman-CERP/indexedsearch/pkg/version"
)

// app holds the components every command shares: the record store, the
// index, the listener keeping them in sync and the query service.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	records *recordstore.Store
	index   *store.Reopening
	created bool

	reconciler *index.Reconciler
	listener   *index.Listener
	queue      *index.Queue
	search     *search.Service

	unsubscribe func()
}

// loadConfig loads the file named by --config, or the project config in
// the working directory.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return config.Load(wd)
}

// resolvedConfigPath returns the config file in use, or "" when only
// defaults and the environment apply.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return config.FindProjectConfig(wd)
}

func indexOptions(cfg *config.Config, logger *slog.Logger) index.Options {
	return index.Options{
		PruneUnprocessed: cfg.Index.PruneUnprocessed,
		Retry:            errors.DefaultRetryConfig(),
		Logger:           logger,
	}
}

// openApp opens the record store and the index and subscribes the change
// listener. With events.async the listener runs behind a worker queue.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, err := recordstore.ParseDriver(cfg.Records.Driver)
	if err != nil {
		return nil, err
	}
	backend, err := store.ParseBackend(cfg.Index.Backend)
	if err != nil {
		return nil, err
	}

	records, err := recordstore.Open(ctx, cfg.Records.Path, recordstore.Options{
		Driver: driver,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	storeOpts := store.Options{
		Backend:        backend,
		WriterTimeout:  cfg.WriterTimeoutDuration(),
		RecoverCorrupt: cfg.Index.RecoverCorrupt,
		Logger:         logger,
	}
	idx, created, err := store.NewReopening(func() (store.SearchIndex, bool, error) {
		return store.OpenOrCreate(cfg.Index.Dir, storeOpts)
	}, logger)
	if err != nil {
		_ = records.Close()
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		records:    records,
		index:      idx,
		created:    created,
		reconciler: index.NewReconciler(idx, records, indexOptions(cfg, logger)),
		listener:   index.NewListener(idx, records, indexOptions(cfg, logger)),
		search: search.NewService(idx, search.Config{
			MaxResults:     cfg.Search.MaxResults,
			MaxQueryLength: cfg.Search.MaxQueryLength,
			CacheSize:      cfg.Search.CacheSize,
		}, search.WithLogger(logger)),
	}

	var observer media.Observer = a.listener
	if cfg.Events.Async {
		a.queue = index.NewQueue(a.listener, cfg.Events.Workers, cfg.Events.QueueSize, logger)
		observer = a.queue
	}
	a.unsubscribe = records.Subscribe(observer)

	metrics.SetAppInfo(version.Version, version.Commit, string(backend))
	if n, err := idx.Count(ctx); err == nil {
		metrics.IndexDocuments.Set(float64(n))
	}

	logger.Debug("app_opened",
		slog.String("backend", string(backend)),
		slog.String("index", idx.Path()),
		slog.String("records", records.Path()),
		slog.Bool("async_events", cfg.Events.Async))
	return a, nil
}

// Close drains queued events, then closes the index and the record store.
func (a *app) Close() error {
	var errs []error
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.index.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.records.Close(); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

// withApp loads config, opens the app, runs fn and closes the app.
func withApp(ctx context.Context, fn func(*app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			slog.Warn("app_close_failed", slog.String("error", cerr.Error()))
		}
	}()
	return fn(a)
}
