// Package pipeline declares the etl_with_branching graph: a branch on the
// "dataset" param picks one extract task, which feeds its load task.
package pipeline

import (
	"context"
	"time"

	"etlbranching/internal/dag"
	"etlbranching/internal/domain"
	"etlbranching/internal/etl"
	"etlbranching/internal/telemetry"
)

// Task ids.
const (
	TaskChooseBranch     = "choose_dataset_branch"
	TaskExtractWalmart   = "extract_walmart_data"
	TaskExtractInstagram = "extract_instagram_data"
	TaskLoadWalmart      = "load_walmart_to_sqlite"
	TaskLoadInstagram    = "load_instagram_to_sqlite"
)

// StartDate is the nominal start of the schedule. Catchup is off, so no run
// is ever created for past intervals.
var StartDate = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// Tasks is what the graph's task bodies call into. *etl.Runner satisfies it.
type Tasks interface {
	Extract(ctx context.Context, dataset domain.Dataset) (string, error)
	Load(ctx context.Context, dataset domain.Dataset) (*etl.LoadResult, error)
}

// Options tune the generated tasks.
type Options struct {
	Retries    int
	RetryDelay time.Duration
}

// ChooseBranch returns the extract task for params: walmart when the dataset
// param is walmart or missing, instagram for every other value.
func ChooseBranch(params domain.RunParams) string {
	return ExtractTaskID(BranchDataset(params))
}

// BranchDataset is the dataset the branch will actually process for params.
func BranchDataset(params domain.RunParams) domain.Dataset {
	if params.Dataset() == domain.DatasetWalmart {
		return domain.DatasetWalmart
	}
	return domain.DatasetInstagram
}

// ExtractTaskID returns the extract task bound to a dataset.
func ExtractTaskID(ds domain.Dataset) string { return "extract_" + string(ds) + "_data" }

// LoadTaskID returns the load task bound to a dataset.
func LoadTaskID(ds domain.Dataset) string { return "load_" + string(ds) + "_to_sqlite" }

// New builds the graph:
//
//	choose_dataset_branch >> [extract_walmart_data, extract_instagram_data]
//	extract_walmart_data >> load_walmart_to_sqlite
//	extract_instagram_data >> load_instagram_to_sqlite
func New(tasks Tasks, opts Options) (*dag.DAG, error) {
	d := dag.New(domain.DagID)

	if err := d.AddBranch(dag.BranchTask{
		ID: TaskChooseBranch,
		Choose: func(ctx context.Context, params domain.RunParams) ([]string, error) {
			ds := params.Dataset()
			if ds != domain.DatasetWalmart && ds != domain.DatasetInstagram {
				telemetry.FromContext(ctx).Warn("Unrecognized dataset, following the instagram branch.", "dataset", string(ds))
			}
			return []string{ChooseBranch(params)}, nil
		},
	}); err != nil {
		return nil, err
	}

	for _, ds := range []domain.Dataset{domain.DatasetWalmart, domain.DatasetInstagram} {
		extract := dag.Task{
			ID:         ExtractTaskID(ds),
			Retries:    opts.Retries,
			RetryDelay: opts.RetryDelay,
			Fn: func(ctx context.Context, _ domain.RunParams) (any, error) {
				return tasks.Extract(ctx, ds)
			},
		}
		load := dag.Task{
			ID:         LoadTaskID(ds),
			Retries:    opts.Retries,
			RetryDelay: opts.RetryDelay,
			Fn: func(ctx context.Context, _ domain.RunParams) (any, error) {
				return tasks.Load(ctx, ds)
			},
		}
		if err := d.Add(extract); err != nil {
			return nil, err
		}
		if err := d.Add(load); err != nil {
			return nil, err
		}
		d.SetDownstream(extract.ID, load.ID)
	}
	d.SetDownstream(TaskChooseBranch, TaskExtractWalmart, TaskExtractInstagram)

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
