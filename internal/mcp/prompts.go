package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("diagnose_run",
		mcp.WithPromptDescription("Investigate why a pipeline run failed"),
		mcp.WithArgument("runId",
			mcp.ArgumentDescription("ID of the run to investigate"),
			mcp.RequiredArgument(),
		),
	), s.handleDiagnoseRunPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("refresh_dataset",
		mcp.WithPromptDescription("Reload a dataset and check the result"),
		mcp.WithArgument("dataset",
			mcp.ArgumentDescription("walmart or instagram"),
			mcp.RequiredArgument(),
		),
	), s.handleRefreshDatasetPrompt)
}

func (s *Server) handleDiagnoseRunPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	runID := req.Params.Arguments["runId"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Diagnose run %s", runID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Find out why pipeline run %s did not succeed:

1. Call get_run with runId %q and find the first task whose state is "failed"
2. Tasks marked "upstream_failed" never ran; ignore them
3. If an extract task failed, the download or the dataset file lookup is the cause
4. If a load task failed, call preview_staging for its dataset to check the staged CSV
5. Summarize the root cause and whether re-running with trigger_pipeline is likely to help`, runID, runID),
				},
			},
		},
	}, nil
}

func (s *Server) handleRefreshDatasetPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	ds := req.Params.Arguments["dataset"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Refresh the %s dataset", ds),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Refresh the %s dataset:

1. Call trigger_pipeline with dataset %q
2. If the run failed, follow the diagnose_run steps for its id
3. If it succeeded, call preview_table for %q and report the columns and a few sample rows`, ds, ds, ds),
				},
			},
		},
	}, nil
}
