package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every metric the predictor records.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// gRPC
	GRPCRequestsTotal   CounterVec
	GRPCRequestDuration HistogramVec

	// Pipeline
	PipelineRunsTotal     CounterVec
	PipelineStageDuration HistogramVec
	PipelineFailures      CounterVec
	MoleculesScored       CounterVec
	FeatureCoverage       HistogramVec

	// Artifacts
	ArtifactReloadsTotal CounterVec
	ModelLoaded          GaugeVec

	// Cache
	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec

	// Jobs
	JobsSubmittedTotal CounterVec
	JobsProcessedTotal CounterVec
	JobDuration        HistogramVec

	// Side channels (history, search index, graph, exports)
	SideEffectErrors CounterVec

	// Health
	HealthCheckStatus GaugeVec
}

// Default buckets.
var (
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
	DefaultStageDurationBuckets = []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}
	DefaultCoverageBuckets      = []float64{0, .1, .25, .5, .75, .9, .95, .99, 1}
)

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	m.GRPCRequestsTotal = collector.RegisterCounter("grpc_requests_total", "Total gRPC calls", "service", "method", "code")
	m.GRPCRequestDuration = collector.RegisterHistogram("grpc_request_duration_seconds", "gRPC call duration", DefaultHTTPDurationBuckets, "service", "method")

	m.PipelineRunsTotal = collector.RegisterCounter("pipeline_runs_total", "Prediction pipeline runs", "status")
	m.PipelineStageDuration = collector.RegisterHistogram("pipeline_stage_duration_seconds", "Duration of each pipeline stage", DefaultStageDurationBuckets, "stage")
	m.PipelineFailures = collector.RegisterCounter("pipeline_failures_total", "Pipeline failures by stage", "stage")
	m.MoleculesScored = collector.RegisterCounter("molecules_scored_total", "Molecules scored", "source")
	m.FeatureCoverage = collector.RegisterHistogram("feature_coverage_ratio", "Fraction of reference features present in a descriptor run", DefaultCoverageBuckets)

	m.ArtifactReloadsTotal = collector.RegisterCounter("artifact_reloads_total", "Model artifact reloads", "result")
	m.ModelLoaded = collector.RegisterGauge("model_loaded", "Whether a model is loaded (1) or not (0)", "backend")

	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")

	m.JobsSubmittedTotal = collector.RegisterCounter("jobs_submitted_total", "Async jobs submitted")
	m.JobsProcessedTotal = collector.RegisterCounter("jobs_processed_total", "Async jobs processed", "status")
	m.JobDuration = collector.RegisterHistogram("job_duration_seconds", "Async job duration", DefaultStageDurationBuckets)

	m.SideEffectErrors = collector.RegisterCounter("side_effect_errors_total", "Failures writing to optional backends", "backend")

	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")

	return m
}

// NewNoopAppMetrics returns AppMetrics backed by the no-op collector.
func NewNoopAppMetrics() *AppMetrics {
	return NewAppMetrics(NewNoopCollector())
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(m *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordGRPCRequest records one finished gRPC call.
func RecordGRPCRequest(m *AppMetrics, service, method, code string, duration time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(service, method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordStage records the duration of one pipeline stage.
func RecordStage(m *AppMetrics, stage string, duration time.Duration) {
	m.PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordRun records a finished pipeline run. failedStage is empty on success.
func RecordRun(m *AppMetrics, failedStage string, molecules int, coverage float64, source string) {
	if failedStage != "" {
		m.PipelineRunsTotal.WithLabelValues("failed").Inc()
		m.PipelineFailures.WithLabelValues(failedStage).Inc()
		return
	}
	m.PipelineRunsTotal.WithLabelValues("succeeded").Inc()
	m.MoleculesScored.WithLabelValues(source).Add(float64(molecules))
	m.FeatureCoverage.WithLabelValues().Observe(coverage)
}

// RecordCacheAccess records a cache hit or miss.
func RecordCacheAccess(m *AppMetrics, cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordArtifactReload records an artifact reload attempt.
func RecordArtifactReload(m *AppMetrics, backend string, err error) {
	if err != nil {
		m.ArtifactReloadsTotal.WithLabelValues("error").Inc()
		m.ModelLoaded.WithLabelValues(backend).Set(0)
		return
	}
	m.ArtifactReloadsTotal.WithLabelValues("ok").Inc()
	m.ModelLoaded.WithLabelValues(backend).Set(1)
}

// RecordJob records a processed async job.
func RecordJob(m *AppMetrics, status string, duration time.Duration) {
	m.JobsProcessedTotal.WithLabelValues(status).Inc()
	m.JobDuration.WithLabelValues().Observe(duration.Seconds())
}

//Personal.AI order the ending
