package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"

	"etlbranching/internal/domain"
	"etlbranching/internal/etl"
)

type fakeTasks struct {
	calls      []string
	extractErr error
}

func (f *fakeTasks) Extract(_ context.Context, ds domain.Dataset) (string, error) {
	f.calls = append(f.calls, "extract:"+string(ds))
	if f.extractErr != nil {
		return "", f.extractErr
	}
	return "data/" + string(ds) + ".csv", nil
}

func (f *fakeTasks) Load(_ context.Context, ds domain.Dataset) (*etl.LoadResult, error) {
	f.calls = append(f.calls, "load:"+string(ds))
	return &etl.LoadResult{Dataset: ds, File: domain.StoreFileName(ds), Table: string(ds), Rows: 3}, nil
}

func TestChooseBranch(t *testing.T) {
	tests := []struct {
		name   string
		params domain.RunParams
		want   string
	}{
		{"walmart", domain.RunParams{"dataset": "walmart"}, TaskExtractWalmart},
		{"instagram", domain.RunParams{"dataset": "instagram"}, TaskExtractInstagram},
		{"unknown falls to instagram", domain.RunParams{"dataset": "netflix"}, TaskExtractInstagram},
		{"case sensitive", domain.RunParams{"dataset": "Walmart"}, TaskExtractInstagram},
		{"missing defaults to walmart", domain.RunParams{}, TaskExtractWalmart},
		{"nil defaults to walmart", nil, TaskExtractWalmart},
		{"empty defaults to walmart", domain.RunParams{"dataset": ""}, TaskExtractWalmart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChooseBranch(tt.params); got != tt.want {
				t.Errorf("ChooseBranch(%v) = %q, want %q", tt.params, got, tt.want)
			}
		})
	}
}

func TestNew_Graph(t *testing.T) {
	d, err := New(&fakeTasks{}, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if d.ID != "etl_with_branching" {
		t.Errorf("dag id %q", d.ID)
	}
	down := d.Downstream(TaskChooseBranch)
	slices.Sort(down)
	if !slices.Equal(down, []string{TaskExtractInstagram, TaskExtractWalmart}) {
		t.Errorf("branch downstream = %v", down)
	}
	if got := d.Downstream(TaskExtractWalmart); !slices.Equal(got, []string{TaskLoadWalmart}) {
		t.Errorf("walmart extract downstream = %v", got)
	}
	if got := d.Downstream(TaskExtractInstagram); !slices.Equal(got, []string{TaskLoadInstagram}) {
		t.Errorf("instagram extract downstream = %v", got)
	}
}

func TestRun_WalmartBranch(t *testing.T) {
	tasks := &fakeTasks{}
	d, err := New(tasks, Options{})
	if err != nil {
		t.Fatal(err)
	}

	res, err := d.Run(context.Background(), domain.DefaultParams(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !slices.Equal(tasks.calls, []string{"extract:walmart", "load:walmart"}) {
		t.Errorf("calls = %v", tasks.calls)
	}
	if res.States[TaskExtractInstagram] != domain.TaskSkipped || res.States[TaskLoadInstagram] != domain.TaskSkipped {
		t.Errorf("instagram branch should be skipped: %v", res.States)
	}
	if lr, ok := res.Results[TaskLoadWalmart].(*etl.LoadResult); !ok || lr.File != "walmart.db" {
		t.Errorf("load result = %v", res.Results[TaskLoadWalmart])
	}
}

func TestRun_InstagramBranch(t *testing.T) {
	tasks := &fakeTasks{}
	d, err := New(tasks, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Run(context.Background(), domain.RunParams{"dataset": "instagram"}, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !slices.Equal(tasks.calls, []string{"extract:instagram", "load:instagram"}) {
		t.Errorf("calls = %v", tasks.calls)
	}
}

func TestRun_ExtractFailureBlocksLoad(t *testing.T) {
	boom := errors.New("download failed")
	tasks := &fakeTasks{extractErr: boom}
	d, err := New(tasks, Options{})
	if err != nil {
		t.Fatal(err)
	}

	res, err := d.Run(context.Background(), nil, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if res.States[TaskLoadWalmart] != domain.TaskUpstreamFailed {
		t.Errorf("load state %q", res.States[TaskLoadWalmart])
	}
	if slices.Contains(tasks.calls, "load:walmart") {
		t.Error("load must not run after a failed extract")
	}
}

func TestTaskIDHelpers(t *testing.T) {
	if ExtractTaskID(domain.DatasetWalmart) != TaskExtractWalmart || LoadTaskID(domain.DatasetInstagram) != TaskLoadInstagram {
		t.Error("task id helpers disagree with constants")
	}
}
