package bootstrap

import (
	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/prometheus"
)

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	return logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           cfg.Format,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	})
}

// NewMetrics registers the application metrics. With prometheus disabled
// the collector is a no-op and serves an empty handler.
func NewMetrics(cfg config.PrometheusConfig, logger logging.Logger) (prometheus.MetricsCollector, *prometheus.AppMetrics, error) {
	if !cfg.Enabled {
		return prometheus.NewNoopCollector(), prometheus.NewNoopAppMetrics(), nil
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Namespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return collector, prometheus.NewAppMetrics(collector), nil
}

//Personal.AI order the ending
