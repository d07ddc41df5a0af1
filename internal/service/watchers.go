package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"etlbranching/internal/domain"
	"etlbranching/internal/pipeline"
)

// ── Watchers (cron + file_watch) ──────────────────────────

// watchDebounce coalesces the bursts of write events a single file save
// produces.
const watchDebounce = 500 * time.Millisecond

// WatchConfig selects which watchers RestartWatchers starts.
type WatchConfig struct {
	// Schedule is a cron expression; empty disables the schedule.
	Schedule string
	// Staging enables reloading a dataset when data/{dataset}.csv is written.
	Staging  bool
	DataDir  string
	Datasets []domain.Dataset
}

type watchState struct {
	mu        sync.Mutex
	cancel    context.CancelFunc
	watcher   *fsnotify.Watcher
	cronSched *cron.Cron
}

// RestartWatchers tears down the current watcher/cron and rebuilds them from cfg.
func (s *PipelineService) RestartWatchers(ctx context.Context, cfg WatchConfig) error {
	s.stopWatchers()

	s.watch.mu.Lock()
	defer s.watch.mu.Unlock()

	// ── Cron schedule ──
	if cfg.Schedule != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.Schedule, func() {
			s.logger.Info("Scheduled run starting.", "schedule", cfg.Schedule)
			_, err := s.Trigger(ctx, TriggerInput{Params: domain.DefaultParams(), Trigger: domain.TriggerSchedule})
			if err != nil {
				s.logger.Error("Scheduled run failed.", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
		}
		c.Start()
		s.watch.cronSched = c
		s.logger.Info("Pipeline scheduled.", "schedule", cfg.Schedule)
	}

	// ── Staging file watcher ──
	if !cfg.Staging || len(cfg.Datasets) == 0 {
		return nil
	}

	pathToDataset := make(map[string]domain.Dataset, len(cfg.Datasets))
	for _, ds := range cfg.Datasets {
		abs, err := filepath.Abs(domain.StagingPath(cfg.DataDir, ds))
		if err != nil {
			return fmt.Errorf("resolve staging path for %s: %w", ds, err)
		}
		pathToDataset[abs] = ds
	}
	dir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir %q: %w", dir, err)
	}
	s.watch.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	s.watch.cancel = cancel

	go s.watchLoop(watchCtx, watcher, pathToDataset)

	s.logger.Info("Watching staging files.", "dir", dir, "files", len(pathToDataset))
	return nil
}

func (s *PipelineService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, pathToDataset map[string]domain.Dataset) {
	timers := make(map[domain.Dataset]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			ds, ok := pathToDataset[absPath]
			if !ok {
				continue
			}
			if t, exists := timers[ds]; exists {
				t.Stop()
			}
			timers[ds] = time.AfterFunc(watchDebounce, func() {
				if ctx.Err() != nil {
					return
				}
				s.reloadStaged(ctx, ds, absPath)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("Staging watcher error.", "error", err)
		}
	}
}

// reloadStaged re-runs the load task for ds after its staging file changed.
// A run already holding the dataset is left alone: it loads the file itself.
func (s *PipelineService) reloadStaged(ctx context.Context, ds domain.Dataset, path string) {
	logger := s.logger.With("dataset", string(ds), "trigger", string(domain.TriggerFileWatch))
	logger.Info("Staging file changed, reloading.", "path", path)
	_, err := s.RunTask(ctx, pipeline.LoadTaskID(ds), domain.RunParams{domain.ParamDataset: string(ds)})
	switch {
	case isBusy(err):
		logger.Info("Reload skipped, dataset busy.")
	case err != nil:
		logger.Error("Reload failed.", "error", err)
	}
}

func (s *PipelineService) stopWatchers() {
	s.watch.mu.Lock()
	defer s.watch.mu.Unlock()
	if s.watch.cancel != nil {
		s.watch.cancel()
		s.watch.cancel = nil
	}
	if s.watch.watcher != nil {
		s.watch.watcher.Close()
		s.watch.watcher = nil
	}
	if s.watch.cronSched != nil {
		s.watch.cronSched.Stop()
		s.watch.cronSched = nil
	}
}
