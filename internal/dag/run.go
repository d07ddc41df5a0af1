package dag

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"etlbranching/internal/domain"
	"etlbranching/internal/telemetry"
)

// TaskEvent reports a task state change to an Observer.
type TaskEvent struct {
	TaskID     string
	State      domain.TaskState
	TryNumber  int
	Result     any
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Observer receives every task state change of a run, in order.
type Observer func(ctx context.Context, ev TaskEvent)

// RunResult is the final state of every task of a run. Tasks never reached
// because the context was cancelled have no entry.
type RunResult struct {
	States  map[string]domain.TaskState
	Results map[string]any
	Errors  map[string]error
}

// Run executes the graph once with params. A failed task marks its
// transitive downstream tasks upstream_failed; the returned error wraps the
// first root-cause failure.
func (d *DAG) Run(ctx context.Context, params domain.RunParams, obs Observer) (*RunResult, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if obs == nil {
		obs = func(context.Context, TaskEvent) {}
	}
	order, _ := d.topoSort()
	logger := telemetry.FromContext(ctx)

	res := &RunResult{
		States:  make(map[string]domain.TaskState, len(order)),
		Results: map[string]any{},
		Errors:  map[string]error{},
	}
	finish := func(ev TaskEvent) {
		res.States[ev.TaskID] = ev.State
		if ev.Err != nil {
			res.Errors[ev.TaskID] = ev.Err
		}
		if ev.State == domain.TaskSuccess && ev.Result != nil {
			res.Results[ev.TaskID] = ev.Result
		}
		obs(ctx, ev)
	}

	var failed []string
	var rootCause error
	for _, id := range order {
		if res.States[id].Finished() {
			continue // already skipped by a branch
		}
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("run %s cancelled before %s: %w", d.ID, id, err)
		}

		n := d.nodes[id]
		now := time.Now()
		switch upstreamVerdict(n, res.States) {
		case domain.TaskUpstreamFailed:
			logger.Warn("Skipping task due to upstream failure.", "task", id)
			finish(TaskEvent{TaskID: id, State: domain.TaskUpstreamFailed, Err: ErrUpstreamFailed, FinishedAt: now})
			continue
		case domain.TaskSkipped:
			logger.Info("Skipping task, all upstream tasks skipped.", "task", id)
			finish(TaskEvent{TaskID: id, State: domain.TaskSkipped, FinishedAt: now})
			continue
		}

		taskLog := telemetry.WithTaskID(logger, id)
		taskCtx := telemetry.WithLogger(ctx, taskLog)

		var ev TaskEvent
		var unselected []string
		if n.isBranch() {
			ev, unselected = runBranch(taskCtx, n, params, obs)
		} else {
			ev = runTask(taskCtx, n, params, obs)
		}
		finish(ev)
		for _, skip := range unselected {
			finish(TaskEvent{TaskID: skip, State: domain.TaskSkipped, FinishedAt: time.Now()})
		}

		if ev.State == domain.TaskFailed {
			taskLog.Error("Task failed.", "error", ev.Err, "try", ev.TryNumber)
			failed = append(failed, id)
			if rootCause == nil {
				rootCause = ev.Err
			}
		} else {
			taskLog.Info("Task finished.", "state", string(ev.State), "duration", ev.FinishedAt.Sub(ev.StartedAt))
		}
	}

	if rootCause != nil {
		return res, fmt.Errorf("execution failed for %s: %w", strings.Join(failed, ", "), rootCause)
	}
	return res, nil
}

// upstreamVerdict decides whether a task can run: upstream_failed when any
// upstream failed, skipped when every upstream was skipped, otherwise ""
// (run it).
func upstreamVerdict(n *node, states map[string]domain.TaskState) domain.TaskState {
	if len(n.upstream) == 0 {
		return ""
	}
	skipped := 0
	for _, up := range n.upstream {
		switch states[up] {
		case domain.TaskFailed, domain.TaskUpstreamFailed:
			return domain.TaskUpstreamFailed
		case domain.TaskSkipped:
			skipped++
		}
	}
	if skipped == len(n.upstream) {
		return domain.TaskSkipped
	}
	return ""
}

// runBranch evaluates a branch and returns the direct downstream tasks it did
// not select. Selecting a task that is not a direct downstream fails the branch.
func runBranch(ctx context.Context, n *node, params domain.RunParams, obs Observer) (TaskEvent, []string) {
	start := time.Now()
	obs(ctx, TaskEvent{TaskID: n.id, State: domain.TaskRunning, TryNumber: 1, StartedAt: start})

	selected, err := safeChoose(ctx, n.choose, params)
	if err == nil {
		for _, id := range selected {
			if !slices.Contains(n.downstream, id) {
				err = fmt.Errorf("%w: %s -> %q", ErrInvalidBranch, n.id, id)
				break
			}
		}
	}
	if err != nil {
		return TaskEvent{TaskID: n.id, State: domain.TaskFailed, TryNumber: 1, Err: err, StartedAt: start, FinishedAt: time.Now()}, nil
	}

	telemetry.FromContext(ctx).Info("Branch selected.", "selected", selected)
	var unselected []string
	for _, id := range n.downstream {
		if !slices.Contains(selected, id) {
			unselected = append(unselected, id)
		}
	}
	return TaskEvent{
		TaskID:     n.id,
		State:      domain.TaskSuccess,
		TryNumber:  1,
		Result:     strings.Join(selected, ","),
		StartedAt:  start,
		FinishedAt: time.Now(),
	}, unselected
}

// runTask attempts a task 1+retries times, waiting retryDelay in between.
func runTask(ctx context.Context, n *node, params domain.RunParams, obs Observer) TaskEvent {
	start := time.Now()
	var err error
	for try := 1; try <= n.retries+1; try++ {
		obs(ctx, TaskEvent{TaskID: n.id, State: domain.TaskRunning, TryNumber: try, StartedAt: start})

		var out any
		out, err = safeCall(ctx, n.fn, params)
		if err == nil {
			return TaskEvent{TaskID: n.id, State: domain.TaskSuccess, TryNumber: try, Result: out, StartedAt: start, FinishedAt: time.Now()}
		}
		if try > n.retries || ctx.Err() != nil {
			return TaskEvent{TaskID: n.id, State: domain.TaskFailed, TryNumber: try, Err: err, StartedAt: start, FinishedAt: time.Now()}
		}

		telemetry.FromContext(ctx).Warn("Task failed, retrying.", "try", try, "retries", n.retries, "delay", n.retryDelay, "error", err)
		obs(ctx, TaskEvent{TaskID: n.id, State: domain.TaskUpForRetry, TryNumber: try, Err: err, StartedAt: start})

		timer := time.NewTimer(n.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return TaskEvent{TaskID: n.id, State: domain.TaskFailed, TryNumber: try, Err: ctx.Err(), StartedAt: start, FinishedAt: time.Now()}
		case <-timer.C:
		}
	}
	return TaskEvent{TaskID: n.id, State: domain.TaskFailed, Err: err, StartedAt: start, FinishedAt: time.Now()}
}

func safeCall(ctx context.Context, fn TaskFunc, params domain.RunParams) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx, params)
}

func safeChoose(ctx context.Context, fn ChooseFunc, params domain.RunParams) (ids []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("branch panicked: %v", r)
		}
	}()
	return fn(ctx, params)
}
