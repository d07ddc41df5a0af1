// Package api serves the pipeline over HTTP: trigger and list runs, plus
// health and Prometheus endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"etlbranching/internal/domain"
	"etlbranching/internal/service"
)

// Pipeline is the part of *service.PipelineService the handlers use.
type Pipeline interface {
	Start(ctx context.Context, in service.TriggerInput) (domain.DagRun, <-chan service.RunOutcome, error)
	ListRuns(limit int) ([]domain.DagRun, error)
	GetRun(id string) (*service.RunDetail, error)
}

// Handler holds the API dependencies.
type Handler struct {
	pipeline Pipeline
	catalog  domain.Catalog
	metrics  http.Handler
	logger   *slog.Logger
	started  time.Time
}

// Config configures NewHandler.
type Config struct {
	Pipeline Pipeline
	Catalog  domain.Catalog
	Metrics  http.Handler // nil disables /metrics
	Logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipeline: cfg.Pipeline,
		catalog:  cfg.Catalog,
		metrics:  cfg.Metrics,
		logger:   logger,
		started:  time.Now(),
	}
}

// CreateDagRunRequest is the trigger body: {"conf": {"dataset": "walmart"}}.
type CreateDagRunRequest struct {
	Conf domain.RunParams `json:"conf"`
}

// Healthz reports liveness and uptime.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	Success(w, map[string]string{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// CreateDagRun starts a run and returns it before it finishes.
// POST /api/v1/dags/etl_with_branching/dagRuns
func (h *Handler) CreateDagRun(w http.ResponseWriter, r *http.Request) {
	var req CreateDagRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}
	if v, ok := req.Conf[domain.ParamDataset]; ok {
		if _, isString := v.(string); !isString {
			BadRequest(w, "conf.dataset must be a string")
			return
		}
	}

	// the run outlives the request
	ctx := context.WithoutCancel(r.Context())
	run, _, err := h.pipeline.Start(ctx, service.TriggerInput{Params: req.Conf, Trigger: domain.TriggerAPI})
	if HandleServiceError(w, h.logger, err) {
		return
	}
	Accepted(w, run)
}

// ListDagRuns lists recent runs, newest first.
// GET /api/v1/dags/etl_with_branching/dagRuns?limit=N
func (h *Handler) ListDagRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := h.pipeline.ListRuns(limit)
	if HandleServiceError(w, h.logger, err) {
		return
	}
	List(w, runs, len(runs))
}

// GetDagRun returns a run with its task instances.
// GET /api/v1/dags/etl_with_branching/dagRuns/{id}
func (h *Handler) GetDagRun(w http.ResponseWriter, r *http.Request) {
	detail, err := h.pipeline.GetRun(r.PathValue("id"))
	if HandleServiceError(w, h.logger, err) {
		return
	}
	Success(w, detail)
}

// ListDatasets returns the catalog.
// GET /api/v1/datasets
func (h *Handler) ListDatasets(w http.ResponseWriter, _ *http.Request) {
	names := h.catalog.Names()
	specs := make([]domain.DatasetSpec, 0, len(names))
	for _, n := range names {
		specs = append(specs, h.catalog[n])
	}
	List(w, specs, len(specs))
}
