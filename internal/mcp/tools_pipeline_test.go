package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"etlbranching/internal/dbclient"
	"etlbranching/internal/domain"
	"etlbranching/internal/etl"
	_ "etlbranching/internal/etl/sources"
	"etlbranching/internal/service"
)

type fakePipeline struct {
	triggered []service.TriggerInput
	err       error
	runs      []domain.DagRun
}

func (f *fakePipeline) Trigger(_ context.Context, in service.TriggerInput) (*domain.DagRun, error) {
	f.triggered = append(f.triggered, in)
	if errors.Is(f.err, service.ErrAlreadyRunning) {
		return nil, f.err
	}
	run := &domain.DagRun{ID: "run-1", DagID: domain.DagID, Params: in.Params.WithDefaults(), Trigger: in.Trigger, State: domain.RunSuccess}
	if f.err != nil {
		run.State = domain.RunFailed
		run.Error = f.err.Error()
	}
	return run, f.err
}

func (f *fakePipeline) ListRuns(limit int) ([]domain.DagRun, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakePipeline) GetRun(id string) (*service.RunDetail, error) {
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &service.RunDetail{DagRun: &f.runs[i]}, nil
		}
	}
	return nil, fmt.Errorf("run %s not found", id)
}

type fakePreviewer struct{}

func (fakePreviewer) PreviewTable(_ context.Context, name domain.Dataset, limit int) (*dbclient.QueryPage, error) {
	return &dbclient.QueryPage{
		Columns: []string{"Date", "Close"},
		Rows:    [][]any{{"2024-01-02", "160.5"}},
	}, nil
}

func (fakePreviewer) PreviewStaging(_ context.Context, name domain.Dataset, limit int) ([]etl.Record, *etl.Schema, error) {
	return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnknownDataset, name)
}

func newTestServer(p *fakePipeline) *Server {
	return New(Deps{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Emitter:  &service.MockEmitter{},
		Pipeline: p,
		Preview:  fakePreviewer{},
		Catalog:  domain.DefaultCatalog(),
	})
}

func request(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func TestTriggerPipeline(t *testing.T) {
	p := &fakePipeline{}
	s := newTestServer(p)

	res, err := s.handleTriggerPipeline(context.Background(), request(map[string]any{"dataset": "instagram"}))
	if err != nil {
		t.Fatal(err)
	}
	var run domain.DagRun
	if err := json.Unmarshal([]byte(resultText(t, res)), &run); err != nil {
		t.Fatal(err)
	}
	if run.Params.Dataset() != domain.DatasetInstagram {
		t.Errorf("dataset = %s", run.Params.Dataset())
	}
	if len(p.triggered) != 1 || p.triggered[0].Trigger != domain.TriggerMCP {
		t.Errorf("triggered = %+v", p.triggered)
	}
}

func TestTriggerPipeline_Busy(t *testing.T) {
	s := newTestServer(&fakePipeline{err: fmt.Errorf("%w: walmart", service.ErrAlreadyRunning)})

	res, err := s.handleTriggerPipeline(context.Background(), request(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected an error result for a busy dataset")
	}
}

func TestTriggerPipeline_FailedRunIsResult(t *testing.T) {
	s := newTestServer(&fakePipeline{err: errors.New("execution failed for extract_walmart_data: boom")})

	res, err := s.handleTriggerPipeline(context.Background(), request(nil))
	if err != nil {
		t.Fatal(err)
	}
	var run domain.DagRun
	if err := json.Unmarshal([]byte(resultText(t, res)), &run); err != nil {
		t.Fatal(err)
	}
	if run.State != domain.RunFailed || run.Error == "" {
		t.Errorf("run = %+v", run)
	}
}

func TestListDatasets(t *testing.T) {
	s := newTestServer(&fakePipeline{})

	res, err := s.handleListDatasets(context.Background(), request(nil))
	if err != nil {
		t.Fatal(err)
	}
	var specs []domain.DatasetSpec
	if err := json.Unmarshal([]byte(resultText(t, res)), &specs); err != nil {
		t.Fatal(err)
	}
	if len(specs) != 2 || specs[0].Name != domain.DatasetInstagram || specs[1].Name != domain.DatasetWalmart {
		t.Fatalf("specs = %+v", specs)
	}
}

func TestListSources(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	res, err := s.handleListSources(context.Background(), request(nil))
	if err != nil {
		t.Fatal(err)
	}
	var specs []etl.SourceSpec
	if err := json.Unmarshal([]byte(resultText(t, res)), &specs); err != nil {
		t.Fatal(err)
	}
	if len(specs) != 2 || specs[0].Type != etl.SourceCSVFile || specs[1].Type != etl.SourceKaggle {
		t.Fatalf("specs = %+v", specs)
	}
	if len(specs[1].ConfigFields) == 0 || !specs[1].ConfigFields[0].Required {
		t.Errorf("expected kaggle config fields, got %+v", specs[1].ConfigFields)
	}
}

func TestListRunsAndGetRun(t *testing.T) {
	p := &fakePipeline{runs: []domain.DagRun{{ID: "b"}, {ID: "a"}}}
	s := newTestServer(p)
	ctx := context.Background()

	res, err := s.handleListRuns(ctx, request(map[string]any{"limit": float64(1)}))
	if err != nil {
		t.Fatal(err)
	}
	var runs []domain.DagRun
	if err := json.Unmarshal([]byte(resultText(t, res)), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "b" {
		t.Fatalf("runs = %+v", runs)
	}

	if _, err := s.handleGetRun(ctx, request(map[string]any{"runId": "a"})); err != nil {
		t.Fatalf("get_run: %v", err)
	}
	if _, err := s.handleGetRun(ctx, request(nil)); err == nil {
		t.Fatal("expected error without runId")
	}
}

func TestPreviewTools(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	ctx := context.Background()

	res, err := s.handlePreviewTable(ctx, request(map[string]any{"dataset": "walmart"}))
	if err != nil {
		t.Fatal(err)
	}
	var page dbclient.QueryPage
	if err := json.Unmarshal([]byte(resultText(t, res)), &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Columns) != 2 || len(page.Rows) != 1 {
		t.Errorf("page = %+v", page)
	}

	if _, err := s.handlePreviewTable(ctx, request(nil)); err == nil {
		t.Error("expected error without dataset")
	}
	if _, err := s.handlePreviewStaging(ctx, request(map[string]any{"dataset": "tiktok"})); !errors.Is(err, domain.ErrUnknownDataset) {
		t.Errorf("err = %v, want ErrUnknownDataset", err)
	}
}

func TestRunIDFromURI(t *testing.T) {
	tests := map[string]string{
		"etl://runs/abc-123":     "abc-123",
		"etl://runs/abc/details": "",
		"etl://datasets":         "",
	}
	for uri, want := range tests {
		if got := runIDFromURI(uri); got != want {
			t.Errorf("runIDFromURI(%q) = %q, want %q", uri, got, want)
		}
	}
}
