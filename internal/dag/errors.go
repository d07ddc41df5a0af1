package dag

import "errors"

var (
	ErrEmptyTaskID    = errors.New("task id must not be empty")
	ErrDuplicateTask  = errors.New("duplicate task id")
	ErrUnknownTask    = errors.New("unknown task")
	ErrCycle          = errors.New("graph contains a cycle")
	ErrInvalidBranch  = errors.New("branch selected a task that is not a direct downstream")
	ErrUpstreamFailed = errors.New("upstream task failed")
)
