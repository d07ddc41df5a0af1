// Package mcpserver exposes the pipeline to AI agents over the Model Context
// Protocol (stdio).
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"etlbranching/internal/dbclient"
	"etlbranching/internal/domain"
	"etlbranching/internal/etl"
	"etlbranching/internal/service"
)

// Pipeline is the part of *service.PipelineService the tools use.
type Pipeline interface {
	Trigger(ctx context.Context, in service.TriggerInput) (*domain.DagRun, error)
	ListRuns(limit int) ([]domain.DagRun, error)
	GetRun(id string) (*service.RunDetail, error)
}

// Previewer reads back staged and loaded data. *etl.Runner implements it.
type Previewer interface {
	PreviewTable(ctx context.Context, name domain.Dataset, limit int) (*dbclient.QueryPage, error)
	PreviewStaging(ctx context.Context, name domain.Dataset, limit int) ([]etl.Record, *etl.Schema, error)
}

// Server is the MCP server for the pipeline.
type Server struct {
	mcp     *server.MCPServer
	logger  *slog.Logger
	emitter service.EventEmitter

	pipeline Pipeline
	preview  Previewer
	catalog  domain.Catalog
}

// Deps holds all dependencies passed from the app layer to the MCP server.
type Deps struct {
	Logger   *slog.Logger
	Emitter  service.EventEmitter
	Pipeline Pipeline
	Preview  Previewer
	Catalog  domain.Catalog
}

// New creates and configures a new MCP server with all tools, resources and prompts.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := deps.Emitter
	if emitter == nil {
		emitter = &service.LogEmitter{Logger: logger}
	}
	s := &Server{
		logger:   logger,
		emitter:  emitter,
		pipeline: deps.Pipeline,
		preview:  deps.Preview,
		catalog:  deps.Catalog,
	}

	s.mcp = server.NewMCPServer(
		"etlbranching-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerPipelineTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCP returns the underlying server, for in-process clients.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("Starting MCP stdio server.")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }
