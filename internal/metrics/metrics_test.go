package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.ObserveRun("walmart", "success")
	m.ObserveRun("walmart", "success")
	m.ObserveRun("instagram", "failed")
	m.ObserveTask("load_walmart_to_sqlite", "success", 2*time.Second)
	m.ObserveTask("extract_instagram_data", "skipped", 0)
	m.AddRowsLoaded("walmart", 250)

	body := scrape(t, m)
	for _, want := range []string{
		`etl_pipeline_runs_total{dataset="walmart",state="success"} 2`,
		`etl_pipeline_runs_total{dataset="instagram",state="failed"} 1`,
		`etl_task_runs_total{task="extract_instagram_data",state="skipped"} 1`,
		`etl_task_duration_seconds_count{task="load_walmart_to_sqlite"} 1`,
		`etl_rows_loaded_total{dataset="walmart"} 250`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in exposition", want)
		}
	}
	if strings.Contains(body, `etl_task_duration_seconds_count{task="extract_instagram_data"}`) {
		t.Error("skipped task should not be observed in the duration histogram")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRun("walmart", "failed")
	m.ObserveTask("x", "failed", time.Second)
	m.AddRowsLoaded("walmart", 1)
}
