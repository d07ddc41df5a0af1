// Package app wires configuration, storage, the Kaggle client, events and
// metrics into a PipelineService and serves it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"etlbranching/internal/api"
	"etlbranching/internal/config"
	"etlbranching/internal/domain"
	"etlbranching/internal/etl"
	"etlbranching/internal/metrics"
	"etlbranching/internal/mq"
	"etlbranching/internal/service"
	"etlbranching/internal/storage"
)

// App owns every long-lived resource of the process.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Runner   *etl.Runner
	Pipeline *service.PipelineService

	db      *storage.DB
	emitter service.EventEmitter
	closers []func() error
}

// New opens the metadata database, configures the Kaggle downloader and
// event emitter, and builds the pipeline service.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	if _, err := setupETLAdapters(cfg, logger); err != nil {
		return nil, err
	}

	db, err := storage.New(cfg.MetadataPath())
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	a.emitter = &service.LogEmitter{Logger: logger}
	if cfg.AMQPURL != "" {
		pub, err := mq.NewPublisher(cfg.AMQPURL, mq.DefaultExchange, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect event broker: %w", err)
		}
		a.emitter = pub
		a.closers = append(a.closers, pub.Close)
	}

	a.Runner = &etl.Runner{
		Catalog: cfg.Catalog(),
		DataDir: cfg.DataDir,
		Target:  cfg.StoreTarget,
	}

	a.Pipeline, err = service.NewPipelineService(storage.NewRunStore(db), a.Runner, a.emitter, service.Options{
		Retries:    cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		RunTimeout: cfg.RunTimeout,
		Logger:     logger,
		Metrics:    a.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Emitter returns the configured event emitter.
func (a *App) Emitter() service.EventEmitter { return a.emitter }

// Close stops watchers and releases resources in reverse order of opening.
func (a *App) Close() error {
	if a.Pipeline != nil {
		a.Pipeline.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Serve runs the HTTP API, the schedule and the staging watcher until ctx is
// done, then waits for in-flight runs.
func (a *App) Serve(ctx context.Context) error {
	err := a.Pipeline.RestartWatchers(ctx, service.WatchConfig{
		Schedule: a.Config.Schedule,
		Staging:  a.Config.Watch,
		DataDir:  a.Config.DataDir,
		Datasets: []domain.Dataset{domain.DatasetWalmart, domain.DatasetInstagram},
	})
	if err != nil {
		return err
	}
	defer a.Pipeline.Stop()

	handler := api.NewHandler(api.Config{
		Pipeline: a.Pipeline,
		Catalog:  a.Runner.Catalog,
		Metrics:  a.Metrics.Handler(),
		Logger:   a.Logger,
	})
	serveErr := handler.Serve(ctx, a.Config.HTTPAddr)

	a.Logger.Info("Waiting for running pipelines.")
	waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.Pipeline.WaitRunning(waitCtx)
	return serveErr
}
