package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/prometheus"
)

// LoggingConfig holds configuration for the request logging middleware.
type LoggingConfig struct {
	// SkipPaths are not logged (probes, metrics scrapes).
	SkipPaths []string
	// SlowThreshold promotes successful requests to Warn.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig returns a sensible default logging configuration.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 30 * time.Second,
	}
}

// RequestLogging writes one access log line per request and records the
// HTTP metrics. Metrics are labelled by route template, not raw path.
func RequestLogging(logger logging.Logger, metrics *prometheus.AppMetrics, config LoggingConfig) gin.HandlerFunc {
	skipSet := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skipSet[p] = true
	}
	if metrics == nil {
		metrics = prometheus.NewNoopAppMetrics()
	}

	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		metrics.HTTPActiveRequests.WithLabelValues(method).Inc()

		c.Next()

		metrics.HTTPActiveRequests.WithLabelValues(method).Dec()
		duration := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		prometheus.RecordHTTPRequest(metrics, method, route, status, duration)

		if skipSet[c.Request.URL.Path] {
			return
		}
		fields := []logging.Field{
			logging.String("method", method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", status),
			logging.Duration("duration", duration),
			logging.Int("bytes", c.Writer.Size()),
			logging.String("client_ip", c.ClientIP()),
			logging.String("request_id", GetRequestID(c)),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, logging.String("query", q))
		}
		if sub := GetSubject(c); sub != "" {
			fields = append(fields, logging.String("subject", sub))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logging.String("error", c.Errors.Last().Error()))
		}

		switch {
		case status >= 500:
			logger.Error("HTTP request completed with server error", fields...)
		case status >= 400:
			logger.Warn("HTTP request completed with client error", fields...)
		case config.SlowThreshold > 0 && duration >= config.SlowThreshold:
			logger.Warn("HTTP request completed (slow)", fields...)
		default:
			logger.Info("HTTP request completed", fields...)
		}
	}
}

//Personal.AI order the ending
