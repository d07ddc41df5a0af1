package app

import (
	"context"
	"time"

	mcpserver "etlbranching/internal/mcp"
)

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
// Logs must not go to stdout here; the CLI points the logger at stderr.
func (a *App) ServeMCP(ctx context.Context) error {
	srv := mcpserver.New(mcpserver.Deps{
		Logger:   a.Logger,
		Emitter:  a.emitter,
		Pipeline: a.Pipeline,
		Preview:  a.Runner,
		Catalog:  a.Runner.Catalog,
	})

	errc := make(chan error, 1)
	go func() { errc <- srv.ServeStdio() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.Pipeline.WaitRunning(waitCtx)
		return nil
	}
}
