package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"etlbranching/internal/dag"
	"etlbranching/internal/domain"
	"etlbranching/internal/etl"
	"etlbranching/internal/metrics"
	"etlbranching/internal/pipeline"
	"etlbranching/internal/telemetry"
)

// ─────────────────────────────────────────────────────────────
// Pipeline Service: triggers and records etl_with_branching runs
// ─────────────────────────────────────────────────────────────

// DefaultRunTimeout bounds a whole run when Options.RunTimeout is zero.
const DefaultRunTimeout = 30 * time.Minute

// Options configure a PipelineService. Zero values are usable.
type Options struct {
	Retries    int
	RetryDelay time.Duration
	RunTimeout time.Duration
	Logger     *slog.Logger
	Metrics    *metrics.Metrics // nil disables metrics
}

// PipelineService runs the etl_with_branching graph, records every run and
// task instance, and owns the schedule and staging-file watchers.
type PipelineService struct {
	runs    domain.RunStore
	graph   *dag.DAG
	emitter EventEmitter
	metrics *metrics.Metrics
	logger  *slog.Logger
	timeout time.Duration

	// single-task entry points, keyed by task id
	tasks map[string]boundTask

	runningJobs runningJobsGuard
	watch       watchState
}

type boundTask struct {
	dataset domain.Dataset
	fn      func(ctx context.Context) (any, error)
}

// NewPipelineService builds the graph over tasks and returns a service ready
// for use.
func NewPipelineService(runs domain.RunStore, tasks pipeline.Tasks, emitter EventEmitter, opts Options) (*PipelineService, error) {
	graph, err := pipeline.New(tasks, pipeline.Options{Retries: opts.Retries, RetryDelay: opts.RetryDelay})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	if emitter == nil {
		emitter = &LogEmitter{Logger: opts.Logger}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.RunTimeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}

	s := &PipelineService{
		runs:    runs,
		graph:   graph,
		emitter: emitter,
		metrics: opts.Metrics,
		logger:  logger,
		timeout: timeout,
		tasks:   map[string]boundTask{},
	}
	for _, ds := range []domain.Dataset{domain.DatasetWalmart, domain.DatasetInstagram} {
		s.tasks[pipeline.ExtractTaskID(ds)] = boundTask{dataset: ds, fn: func(ctx context.Context) (any, error) {
			return tasks.Extract(ctx, ds)
		}}
		s.tasks[pipeline.LoadTaskID(ds)] = boundTask{dataset: ds, fn: func(ctx context.Context) (any, error) {
			return tasks.Load(ctx, ds)
		}}
	}
	return s, nil
}

// Graph returns the pipeline graph.
func (s *PipelineService) Graph() *dag.DAG { return s.graph }

// ── Trigger ────────────────────────────────────────────────

// TriggerInput describes a requested run.
type TriggerInput struct {
	Params  domain.RunParams   `json:"conf"`
	Trigger domain.TriggerType `json:"trigger"`
}

// RunOutcome is the final state of a started run.
type RunOutcome struct {
	Run *domain.DagRun
	Err error
}

// Trigger executes one run synchronously. The returned run is non-nil
// whenever it was recorded, including when the run failed; the error then
// carries the root cause.
func (s *PipelineService) Trigger(ctx context.Context, in TriggerInput) (*domain.DagRun, error) {
	_, done, err := s.Start(ctx, in)
	if err != nil {
		return nil, err
	}
	out := <-done
	return out.Run, out.Err
}

// Start records a run and executes it in the background. It returns a
// snapshot of the run as recorded; done receives the outcome exactly once.
// A second run for the same dataset is refused with ErrAlreadyRunning.
func (s *PipelineService) Start(ctx context.Context, in TriggerInput) (domain.DagRun, <-chan RunOutcome, error) {
	params := in.Params.WithDefaults()
	trigger := in.Trigger
	if trigger == "" {
		trigger = domain.TriggerManual
	}

	ds := pipeline.BranchDataset(params)
	if !s.runningJobs.TryLock(string(ds)) {
		return domain.DagRun{}, nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, ds)
	}

	run := &domain.DagRun{
		ID:        uuid.New().String(),
		DagID:     s.graph.ID,
		Params:    params,
		Trigger:   trigger,
		State:     domain.RunRunning,
		StartedAt: time.Now(),
	}
	if err := s.runs.CreateRun(run); err != nil {
		s.runningJobs.Unlock(string(ds))
		return domain.DagRun{}, nil, fmt.Errorf("create run: %w", err)
	}

	done := make(chan RunOutcome, 1)
	snapshot := *run
	go func() {
		defer s.runningJobs.Unlock(string(ds))
		err := s.execute(ctx, run, ds)
		done <- RunOutcome{Run: run, Err: err}
	}()
	return snapshot, done, nil
}

// execute runs the graph for a recorded run and records the outcome.
func (s *PipelineService) execute(ctx context.Context, run *domain.DagRun, ds domain.Dataset) error {
	logger := telemetry.WithRunID(s.logger, run.ID).With("dataset", string(run.Params.Dataset()), "trigger", string(run.Trigger))
	logger.Info("Run started.")

	runCtx, cancel := context.WithTimeout(telemetry.WithLogger(ctx, logger), s.timeout)
	defer cancel()

	_, runErr := s.graph.Run(runCtx, run.Params, s.observer(run.ID, logger))

	run.State = domain.RunSuccess
	if runErr != nil {
		run.State = domain.RunFailed
		run.Error = runErr.Error()
	}
	run.FinishedAt = time.Now()
	if err := s.runs.FinishRun(run.ID, run.State, run.Error); err != nil {
		logger.Error("Failed to record run result.", "error", err)
	}
	s.metrics.ObserveRun(string(ds), string(run.State))

	if runErr != nil {
		logger.Error("Run failed.", "error", runErr, "duration", run.FinishedAt.Sub(run.StartedAt))
	} else {
		logger.Info("Run succeeded.", "duration", run.FinishedAt.Sub(run.StartedAt))
	}

	s.emitter.Emit(ctx, EventRunCompleted, map[string]string{
		"runId":   run.ID,
		"dagId":   run.DagID,
		"dataset": string(run.Params.Dataset()),
		"state":   string(run.State),
		"error":   run.Error,
	})
	return runErr
}

// observer records task instances and task metrics as the graph advances.
func (s *PipelineService) observer(runID string, logger *slog.Logger) dag.Observer {
	return func(ctx context.Context, ev dag.TaskEvent) {
		ti := &domain.TaskInstance{
			RunID:      runID,
			TaskID:     ev.TaskID,
			State:      ev.State,
			TryNumber:  ev.TryNumber,
			StartedAt:  ev.StartedAt,
			FinishedAt: ev.FinishedAt,
		}
		if ev.Result != nil {
			ti.Result = fmt.Sprint(ev.Result)
		}
		if ev.Err != nil {
			ti.Error = ev.Err.Error()
		}
		if err := s.runs.UpsertTaskInstance(ti); err != nil {
			logger.Error("Failed to record task instance.", "task", ev.TaskID, "error", err)
		}

		if !ev.State.Finished() {
			return
		}
		var d time.Duration
		if !ev.StartedAt.IsZero() {
			d = ev.FinishedAt.Sub(ev.StartedAt)
		}
		s.metrics.ObserveTask(ev.TaskID, string(ev.State), d)
		if lr, ok := ev.Result.(*etl.LoadResult); ok && ev.State == domain.TaskSuccess {
			s.metrics.AddRowsLoaded(string(lr.Dataset), lr.Rows)
		}
	}
}

// ── Single task ────────────────────────────────────────────

// RunTask runs one extract or load task outside the graph. The branch task
// is answered directly with the extract task it would select. No run is
// recorded.
func (s *PipelineService) RunTask(ctx context.Context, taskID string, params domain.RunParams) (any, error) {
	if taskID == pipeline.TaskChooseBranch {
		return pipeline.ChooseBranch(params.WithDefaults()), nil
	}
	bt, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dag.ErrUnknownTask, taskID)
	}
	if !s.runningJobs.TryLock(string(bt.dataset)) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, bt.dataset)
	}
	defer s.runningJobs.Unlock(string(bt.dataset))

	logger := telemetry.WithTaskID(s.logger, taskID)
	taskCtx, cancel := context.WithTimeout(telemetry.WithLogger(ctx, logger), s.timeout)
	defer cancel()

	start := time.Now()
	out, err := bt.fn(taskCtx)
	state := domain.TaskSuccess
	if err != nil {
		state = domain.TaskFailed
	}
	s.metrics.ObserveTask(taskID, string(state), time.Since(start))
	if lr, ok := out.(*etl.LoadResult); ok && err == nil {
		s.metrics.AddRowsLoaded(string(lr.Dataset), lr.Rows)
	}

	payload := map[string]string{"taskId": taskID, "state": string(state)}
	if err != nil {
		logger.Error("Task failed.", "error", err)
		payload["error"] = err.Error()
	} else {
		logger.Info("Task finished.", "duration", time.Since(start))
	}
	s.emitter.Emit(ctx, EventTaskCompleted, payload)

	if err != nil {
		return nil, fmt.Errorf("execution failed for %s: %w", taskID, err)
	}
	return out, nil
}

// ── Queries ────────────────────────────────────────────────

// RunDetail is a run with its task instances.
type RunDetail struct {
	*domain.DagRun
	Tasks []domain.TaskInstance `json:"tasks"`
}

// GetRun returns a run and its task instances.
func (s *PipelineService) GetRun(id string) (*RunDetail, error) {
	run, err := s.runs.GetRun(id)
	if err != nil {
		return nil, err
	}
	tis, err := s.runs.ListTaskInstances(id)
	if err != nil {
		return nil, fmt.Errorf("list task instances: %w", err)
	}
	return &RunDetail{DagRun: run, Tasks: tis}, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *PipelineService) ListRuns(limit int) ([]domain.DagRun, error) {
	return s.runs.ListRuns(limit)
}

// IsRunning reports whether a run or task for ds is in progress.
func (s *PipelineService) IsRunning(ds domain.Dataset) bool {
	return s.runningJobs.Running(string(ds))
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *PipelineService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *PipelineService) Stop() {
	s.stopWatchers()
}

// isBusy reports whether err means the dataset was locked by another run.
func isBusy(err error) bool { return errors.Is(err, ErrAlreadyRunning) }
