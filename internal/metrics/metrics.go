// Package metrics exposes Prometheus counters for pipeline runs and tasks on
// a dedicated registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	pipelineRuns *prometheus.CounterVec
	taskRuns     *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	rowsLoaded   *prometheus.CounterVec
}

// New registers the collectors, plus Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_pipeline_runs_total",
			Help: "Finished pipeline runs by dataset and final state.",
		}, []string{"dataset", "state"}),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_task_runs_total",
			Help: "Finished task instances by task id and final state.",
		}, []string{"task", "state"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_task_duration_seconds",
			Help:    "Wall time of executed tasks.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"task"}),
		rowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_rows_loaded_total",
			Help: "Rows written into dataset tables.",
		}, []string{"dataset"}),
	}
	m.registry.MustRegister(
		m.pipelineRuns,
		m.taskRuns,
		m.taskDuration,
		m.rowsLoaded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRun counts a finished run.
func (m *Metrics) ObserveRun(dataset, state string) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(dataset, state).Inc()
}

// ObserveTask counts a finished task. A zero duration (skipped tasks) is not
// added to the histogram.
func (m *Metrics) ObserveTask(task, state string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskRuns.WithLabelValues(task, state).Inc()
	if d > 0 {
		m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
	}
}

// AddRowsLoaded adds n loaded rows for dataset.
func (m *Metrics) AddRowsLoaded(dataset string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsLoaded.WithLabelValues(dataset).Add(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
