package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"etlbranching/internal/domain"
)

const dagRunsPath = "/api/v1/dags/" + domain.DagID + "/dagRuns"

// RegisterRoutes registers every route on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.HandleFunc("GET /healthz", h.Healthz)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	mux.Handle("POST "+dagRunsPath, chain(http.HandlerFunc(h.CreateDagRun)))
	mux.Handle("GET "+dagRunsPath, chain(http.HandlerFunc(h.ListDagRuns)))
	mux.Handle("GET "+dagRunsPath+"/{id}", chain(http.HandlerFunc(h.GetDagRun)))
	mux.Handle("GET /api/v1/datasets", chain(http.HandlerFunc(h.ListDatasets)))
}

// Routes returns a mux with every route registered.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (h *Handler) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		h.logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	h.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
