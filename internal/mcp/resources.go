package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	uriRuns       = "etl://runs"
	uriRunPrefix  = "etl://runs/"
	uriDatasets   = "etl://datasets"
	uriRunPattern = "etl://runs/{runId}"
)

func (s *Server) registerResources() {
	// ── etl://datasets ─────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		uriDatasets,
		"Dataset Catalog",
		mcp.WithMIMEType("application/json"),
	), s.handleDatasetsResource)

	// ── etl://runs ─────────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		uriRuns,
		"Recent Pipeline Runs",
		mcp.WithMIMEType("application/json"),
	), s.handleRunsResource)

	// ── etl://runs/{runId} ─────────────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			uriRunPattern,
			"Pipeline Run with Task Instances",
		),
		s.handleRunResource,
	)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleDatasetsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	names := s.catalog.Names()
	specs := make([]any, 0, len(names))
	for _, n := range names {
		specs = append(specs, s.catalog[n])
	}
	return jsonContents(uriDatasets, specs)
}

func (s *Server) handleRunsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	runs, err := s.pipeline.ListRuns(20)
	if err != nil {
		return nil, err
	}
	return jsonContents(uriRuns, runs)
}

func (s *Server) handleRunResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	runID := runIDFromURI(uri)
	if runID == "" {
		return nil, fmt.Errorf("could not extract runId from URI: %s", uri)
	}
	detail, err := s.pipeline.GetRun(runID)
	if err != nil {
		return nil, err
	}
	return jsonContents(uri, detail)
}

// runIDFromURI extracts the run id from "etl://runs/{id}".
func runIDFromURI(uri string) string {
	id, ok := strings.CutPrefix(uri, uriRunPrefix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
