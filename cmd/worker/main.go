// Worker entry point: consumes queued prediction jobs from Kafka and runs
// them through the same pipeline as the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/ache-predictor/internal/bootstrap"
	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/ache-predictor/internal/interfaces/http"
	"github.com/turtacn/ache-predictor/internal/interfaces/http/handlers"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

const (
	shutdownTimeout = 30 * time.Second
	maxRetryBackoff = time.Minute
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (searches the default locations when empty)")
	concurrency := flag.Int("concurrency", 0, "handler goroutines (overrides config)")
	flag.Parse()

	cfg, usedPath, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *concurrency > 0 {
		cfg.Worker.Concurrency = *concurrency
	}

	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting AChE predictor worker",
		logging.String("version", Version),
		logging.String("commit", GitCommit),
		logging.String("config", usedPath),
		logging.Int("concurrency", cfg.Worker.Concurrency),
	)
	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited", logging.Err(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	if !cfg.Messaging.Kafka.Enabled {
		return errors.FeatureDisabled("kafka messaging")
	}
	if !cfg.Cache.Redis.Enabled {
		return errors.FeatureDisabled("redis job store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector, metrics, err := bootstrap.NewMetrics(cfg.Monitoring.Prometheus, logger)
	if err != nil {
		return err
	}
	infra, err := bootstrap.Open(ctx, cfg, "worker", metrics, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	svc, err := infra.PredictionService()
	if err != nil {
		return err
	}
	jobs, err := infra.JobService(svc)
	if err != nil {
		return err
	}

	k := cfg.Messaging.Kafka
	consumer, err := kafka.NewConsumer(k, kafka.ConsumerOptions{
		Topic:           k.RequestTopic,
		Concurrency:     cfg.Worker.Concurrency,
		MaxRetries:      k.MaxRetries,
		RetryBackoff:    k.RetryBackoff,
		MaxRetryBackoff: maxRetryBackoff,
		HandlerTimeout:  cfg.Worker.HandlerTimeout,
		DeadLetterTopic: kafka.DeadLetterTopic(k.RequestTopic),
	}, kafka.JobRequestHandler(jobs.Handle), infra.Producer, logger)
	if err != nil {
		return err
	}

	side := httpserver.NewServer(config.ServerConfig{Port: cfg.Worker.HealthPort}, httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler:    handlers.NewHealthHandler(Version, metrics, infra.Checkers()...),
		Logger:           logger,
		Metrics:          metrics,
		MetricsCollector: collector,
		MetricsPath:      cfg.Monitoring.Prometheus.Path,
	}), logger)

	errCh := make(chan error, 1)
	go func() {
		if err := side.Start(); err != nil {
			errCh <- err
		}
	}()

	if err := consumer.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("health server failed", logging.Err(runErr))
	}

	// In-flight jobs finish before the producer they publish through closes.
	if err := consumer.Close(); err != nil {
		logger.Error("consumer close error", logging.Err(err))
	}
	m := consumer.Metrics()
	logger.Info("worker stopped",
		logging.Int64("processed", m.MessagesProcessed.Load()),
		logging.Int64("failed", m.MessagesFailed.Load()),
		logging.Int64("dead_lettered", m.MessagesDeadLettered.Load()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := side.Stop(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", logging.Err(err))
	}
	return runErr
}

//Personal.AI order the ending
