package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
)

func newTestCollector(t *testing.T) MetricsCollector {
	t.Helper()
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test", Subsystem: "unit"}, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func scrapeMetrics(t *testing.T, collector MetricsCollector) string {
	t.Helper()
	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewMetricsCollector_EmptyNamespace(t *testing.T) {
	_, err := NewMetricsCollector(CollectorConfig{Subsystem: "unit"}, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestNewMetricsCollector_WithProcessMetrics(t *testing.T) {
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test", EnableProcessMetrics: true, EnableGoMetrics: true}, nil)
	require.NoError(t, err)
	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "go_goroutines")
}

func TestRegisterCounter_WithLabels(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("http_requests", "HTTP requests", "method").WithLabelValues("GET").Add(5)

	assert.Contains(t, scrapeMetrics(t, c), `test_unit_http_requests{method="GET"} 5`)
}

func TestRegisterCounter_DuplicateSharesVector(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("dup_counter", "help").WithLabelValues().Inc()
	c.RegisterCounter("dup_counter", "help").WithLabelValues().Inc()

	assert.Contains(t, scrapeMetrics(t, c), "test_unit_dup_counter 2")
}

func TestRegister_TypeMismatchFallsBackToNoop(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("shared", "help")
	g := c.RegisterGauge("shared", "help")

	assert.NotPanics(t, func() { g.WithLabelValues().Set(3) })
}

func TestRegisterGauge(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterGauge("loaded", "Loaded").WithLabelValues().Set(1)

	assert.Contains(t, scrapeMetrics(t, c), "test_unit_loaded 1")
}

func TestRegisterHistogram_DefaultBuckets(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterHistogram("latency", "Latency", nil).WithLabelValues().Observe(0.1)

	assert.Contains(t, scrapeMetrics(t, c), "test_unit_latency_bucket")
}

func TestNoopCollector(t *testing.T) {
	c := NewNoopCollector()
	assert.NotPanics(t, func() {
		c.RegisterCounter("a", "a").WithLabelValues("x").Inc()
		c.RegisterGauge("b", "b").WithLabelValues().Set(1)
		c.RegisterHistogram("c", "c", nil).WithLabelValues().Observe(1)
	})
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimer_ObserveDuration(t *testing.T) {
	c := newTestCollector(t)
	h := c.RegisterHistogram("stage_seconds", "Stage", nil, "stage")
	timer := NewTimer(h.WithLabelValues("describe"))
	time.Sleep(time.Millisecond)

	assert.Greater(t, timer.ObserveDuration(), time.Duration(0))
	assert.Contains(t, scrapeMetrics(t, c), `test_unit_stage_seconds_count{stage="describe"} 1`)
}

func TestAppMetrics_Helpers(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	RecordHTTPRequest(m, "POST", "/api/v1/predictions", 200, 50*time.Millisecond)
	RecordStage(m, "describe", 2*time.Second)
	RecordRun(m, "", 2, 0.9, "api")
	RecordRun(m, "describe", 0, 0, "api")
	RecordCacheAccess(m, "prediction", true)
	RecordCacheAccess(m, "prediction", false)
	RecordArtifactReload(m, "command", nil)
	RecordJob(m, "succeeded", time.Second)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_http_requests_total{method="POST",path="/api/v1/predictions",status_code="200"} 1`)
	assert.Contains(t, out, `test_unit_pipeline_runs_total{status="succeeded"} 1`)
	assert.Contains(t, out, `test_unit_pipeline_failures_total{stage="describe"} 1`)
	assert.Contains(t, out, `test_unit_molecules_scored_total{source="api"} 2`)
	assert.Contains(t, out, `test_unit_cache_hits_total{cache="prediction"} 1`)
	assert.Contains(t, out, `test_unit_model_loaded{backend="command"} 1`)
	assert.Contains(t, out, `test_unit_jobs_processed_total{status="succeeded"} 1`)
}

func TestNewNoopAppMetrics(t *testing.T) {
	m := NewNoopAppMetrics()
	assert.NotPanics(t, func() { RecordRun(m, "", 1, 1, "cli") })
}

//Personal.AI order the ending
