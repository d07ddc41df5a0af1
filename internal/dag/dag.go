// Package dag is a small in-process task graph: plain tasks, branch tasks,
// dependency edges, skip propagation and per-task retries. Tasks of one run
// execute sequentially in topological order.
package dag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"etlbranching/internal/domain"
)

// TaskFunc is the body of a task. The returned value is the task's result,
// recorded on its task instance.
type TaskFunc func(ctx context.Context, params domain.RunParams) (any, error)

// ChooseFunc returns the ids of the direct downstream tasks to follow.
type ChooseFunc func(ctx context.Context, params domain.RunParams) ([]string, error)

// Task is a plain unit of work.
type Task struct {
	ID         string
	Fn         TaskFunc
	Retries    int // extra attempts after the first; 0 means fail on first error
	RetryDelay time.Duration
}

// BranchTask selects which of its direct downstream tasks run. The others
// are skipped.
type BranchTask struct {
	ID     string
	Choose ChooseFunc
}

type node struct {
	id         string
	fn         TaskFunc
	choose     ChooseFunc
	retries    int
	retryDelay time.Duration
	upstream   []string
	downstream []string
}

func (n *node) isBranch() bool { return n.choose != nil }

type edge struct{ from, to string }

// DAG is a directed acyclic graph of tasks. Build it fully before running;
// Run may then be called concurrently.
type DAG struct {
	ID string

	mu        sync.Mutex
	validated bool
	nodes     map[string]*node
	order     []string // insertion order, used to break ties
	edges     []edge
}

// New creates an empty graph.
func New(id string) *DAG {
	return &DAG{ID: id, nodes: map[string]*node{}}
}

// Add registers a plain task.
func (d *DAG) Add(t Task) error {
	if t.Fn == nil {
		return fmt.Errorf("task %q: nil func", t.ID)
	}
	return d.add(&node{id: t.ID, fn: t.Fn, retries: t.Retries, retryDelay: t.RetryDelay})
}

// AddBranch registers a branch task.
func (d *DAG) AddBranch(b BranchTask) error {
	if b.Choose == nil {
		return fmt.Errorf("branch %q: nil choose func", b.ID)
	}
	return d.add(&node{id: b.ID, choose: b.Choose})
}

func (d *DAG) add(n *node) error {
	if n.id == "" {
		return ErrEmptyTaskID
	}
	if _, ok := d.nodes[n.id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, n.id)
	}
	if n.retries < 0 {
		return fmt.Errorf("task %q: retries must be >= 0", n.id)
	}
	d.nodes[n.id] = n
	d.order = append(d.order, n.id)
	d.validated = false
	return nil
}

// SetDownstream declares from >> to for each target. Edge ends are checked
// by Validate.
func (d *DAG) SetDownstream(from string, to ...string) {
	for _, t := range to {
		d.edges = append(d.edges, edge{from: from, to: t})
	}
	d.validated = false
}

// Validate resolves edges and rejects unknown ends and cycles.
func (d *DAG) Validate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.validated {
		return nil
	}
	for _, n := range d.nodes {
		n.upstream, n.downstream = nil, nil
	}
	seen := map[edge]bool{}
	for _, e := range d.edges {
		from, ok := d.nodes[e.from]
		if !ok {
			return fmt.Errorf("%w: edge from %q", ErrUnknownTask, e.from)
		}
		to, ok := d.nodes[e.to]
		if !ok {
			return fmt.Errorf("%w: edge to %q", ErrUnknownTask, e.to)
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		from.downstream = append(from.downstream, e.to)
		to.upstream = append(to.upstream, e.from)
	}
	if _, err := d.topoSort(); err != nil {
		return err
	}
	d.validated = true
	return nil
}

// topoSort orders tasks so every task follows its upstreams. Ties keep
// insertion order.
func (d *DAG) topoSort() ([]string, error) {
	indegree := make(map[string]int, len(d.nodes))
	for _, id := range d.order {
		indegree[id] = len(d.nodes[id].upstream)
	}

	sorted := make([]string, 0, len(d.order))
	done := make(map[string]bool, len(d.order))
	for len(sorted) < len(d.order) {
		progressed := false
		for _, id := range d.order {
			if done[id] || indegree[id] > 0 {
				continue
			}
			done[id] = true
			sorted = append(sorted, id)
			for _, down := range d.nodes[id].downstream {
				indegree[down]--
			}
			progressed = true
		}
		if !progressed {
			return nil, ErrCycle
		}
	}
	return sorted, nil
}

// TaskIDs returns task ids in execution order. The graph must be valid.
func (d *DAG) TaskIDs() []string {
	ids, err := d.topoSort()
	if err != nil {
		return append([]string(nil), d.order...)
	}
	return ids
}

// Has reports whether id is a task of the graph.
func (d *DAG) Has(id string) bool {
	_, ok := d.nodes[id]
	return ok
}

// Downstream returns the direct downstream ids of a task.
func (d *DAG) Downstream(id string) []string {
	if n, ok := d.nodes[id]; ok {
		return append([]string(nil), n.downstream...)
	}
	return nil
}

// Upstream returns the direct upstream ids of a task.
func (d *DAG) Upstream(id string) []string {
	if n, ok := d.nodes[id]; ok {
		return append([]string(nil), n.upstream...)
	}
	return nil
}
