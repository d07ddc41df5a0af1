package domain

import "time"

// DagID is the identifier of the only pipeline in this repository.
const DagID = "etl_with_branching"

// RunParams are the trigger-time parameters of a run.
type RunParams map[string]any

// ParamDataset is the trigger-time parameter that selects the branch.
const ParamDataset = "dataset"

// DefaultParams returns the params a run gets when none are supplied.
func DefaultParams() RunParams {
	return RunParams{ParamDataset: string(DefaultDataset)}
}

// Dataset returns the dataset param, falling back to DefaultDataset.
func (p RunParams) Dataset() Dataset {
	if p == nil {
		return DefaultDataset
	}
	if s, ok := p[ParamDataset].(string); ok && s != "" {
		return Dataset(s)
	}
	return DefaultDataset
}

// WithDefaults returns a copy of p with missing params filled in.
func (p RunParams) WithDefaults() RunParams {
	out := DefaultParams()
	for k, v := range p {
		out[k] = v
	}
	if s, _ := out[ParamDataset].(string); s == "" {
		out[ParamDataset] = string(DefaultDataset)
	}
	return out
}

// TriggerType records what started a run.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerSchedule  TriggerType = "schedule"
	TriggerFileWatch TriggerType = "file_watch"
	TriggerAPI       TriggerType = "api"
	TriggerMCP       TriggerType = "mcp"
)

// RunState is the state of a whole DAG run.
type RunState string

const (
	RunRunning RunState = "running"
	RunSuccess RunState = "success"
	RunFailed  RunState = "failed"
)

// TaskState is the state of a single task within a run.
type TaskState string

const (
	TaskNone           TaskState = ""
	TaskRunning        TaskState = "running"
	TaskSuccess        TaskState = "success"
	TaskFailed         TaskState = "failed"
	TaskSkipped        TaskState = "skipped"
	TaskUpstreamFailed TaskState = "upstream_failed"
	TaskUpForRetry     TaskState = "up_for_retry"
)

// Finished reports whether the state is terminal.
func (s TaskState) Finished() bool {
	switch s {
	case TaskSuccess, TaskFailed, TaskSkipped, TaskUpstreamFailed:
		return true
	}
	return false
}

// DagRun is a historical record of one pipeline execution.
type DagRun struct {
	ID         string      `json:"id"`
	DagID      string      `json:"dagId"`
	Params     RunParams   `json:"params"`
	Trigger    TriggerType `json:"trigger"`
	State      RunState    `json:"state"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
	Error      string      `json:"error,omitempty"`
}

// TaskInstance is the record of one task within a DagRun.
type TaskInstance struct {
	RunID      string    `json:"runId"`
	TaskID     string    `json:"taskId"`
	State      TaskState `json:"state"`
	TryNumber  int       `json:"tryNumber"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// RunStore persists runs and their task instances.
type RunStore interface {
	CreateRun(run *DagRun) error
	FinishRun(id string, state RunState, errMsg string) error
	GetRun(id string) (*DagRun, error)
	ListRuns(limit int) ([]DagRun, error)
	UpsertTaskInstance(ti *TaskInstance) error
	ListTaskInstances(runID string) ([]TaskInstance, error)
}
