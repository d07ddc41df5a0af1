package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"etlbranching/internal/domain"
	"etlbranching/internal/etl"
	"etlbranching/internal/service"
)

const defaultPreviewLimit = 20

func (s *Server) registerPipelineTools() {
	s.mcp.AddTool(mcp.NewTool("trigger_pipeline",
		mcp.WithDescription("Run the etl_with_branching pipeline once. Replaces the dataset's table in its store."),
		mcp.WithString("dataset", mcp.Description("Dataset to extract and load: walmart (default) or instagram")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleTriggerPipeline)

	s.mcp.AddTool(mcp.NewTool("list_datasets",
		mcp.WithDescription("List the datasets the pipeline can process with their Kaggle handles and files"),
	), s.handleListDatasets)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the registered source types with their config fields"),
	), s.handleListSources)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent pipeline runs, newest first"),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
	), s.handleListRuns)

	s.mcp.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Get a pipeline run with the state of each task"),
		mcp.WithString("runId", mcp.Description("Run ID"), mcp.Required()),
	), s.handleGetRun)

	s.mcp.AddTool(mcp.NewTool("preview_table",
		mcp.WithDescription("Preview rows of a dataset's loaded table"),
		mcp.WithString("dataset", mcp.Description("Dataset name"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum rows (default 20)")),
	), s.handlePreviewTable)

	s.mcp.AddTool(mcp.NewTool("preview_staging",
		mcp.WithDescription("Preview rows of a dataset's staged CSV file"),
		mcp.WithString("dataset", mcp.Description("Dataset name"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum rows (default 20)")),
	), s.handlePreviewStaging)
}

func (s *Server) handleTriggerPipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := domain.RunParams{}
	if ds := req.GetString("dataset", ""); ds != "" {
		params[domain.ParamDataset] = ds
	}

	run, err := s.pipeline.Trigger(ctx, service.TriggerInput{Params: params, Trigger: domain.TriggerMCP})
	if errors.Is(err, service.ErrAlreadyRunning) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if run == nil {
		return nil, fmt.Errorf("trigger pipeline: %w", err)
	}
	// a failed run is still a result: the agent reads the error from it
	s.emitter.Emit(ctx, "mcp:run-triggered", map[string]string{"runId": run.ID})
	return jsonResult(run)
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(etl.ListSources())
}

func (s *Server) handleListDatasets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	specs := make([]domain.DatasetSpec, 0, len(s.catalog))
	for _, name := range s.catalog.Names() {
		specs = append(specs, s.catalog[name])
	}
	return jsonResult(specs)
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.pipeline.ListRuns(req.GetInt("limit", 20))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return jsonResult(runs)
}

func (s *Server) handleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("runId", "")
	if runID == "" {
		return nil, fmt.Errorf("runId is required")
	}
	detail, err := s.pipeline.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return jsonResult(detail)
}

func (s *Server) handlePreviewTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ds := req.GetString("dataset", "")
	if ds == "" {
		return nil, fmt.Errorf("dataset is required")
	}
	page, err := s.preview.PreviewTable(ctx, domain.Dataset(ds), req.GetInt("limit", defaultPreviewLimit))
	if err != nil {
		return nil, fmt.Errorf("preview table: %w", err)
	}
	return jsonResult(page)
}

func (s *Server) handlePreviewStaging(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ds := req.GetString("dataset", "")
	if ds == "" {
		return nil, fmt.Errorf("dataset is required")
	}
	records, schema, err := s.preview.PreviewStaging(ctx, domain.Dataset(ds), req.GetInt("limit", defaultPreviewLimit))
	if err != nil {
		return nil, fmt.Errorf("preview staging: %w", err)
	}
	return jsonResult(map[string]any{"schema": schema, "records": records})
}
