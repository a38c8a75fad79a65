// API server entry point for the AChE bioactivity predictor.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/turtacn/ache-predictor/internal/bootstrap"
	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/intelligence/bioactivity"
	grpcserver "github.com/turtacn/ache-predictor/internal/interfaces/grpc"
	httpserver "github.com/turtacn/ache-predictor/internal/interfaces/http"
	"github.com/turtacn/ache-predictor/internal/interfaces/http/handlers"
	"github.com/turtacn/ache-predictor/internal/interfaces/http/middleware"
	"github.com/turtacn/ache-predictor/internal/interfaces/http/openapi"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (searches the default locations when empty)")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	grpcPort := flag.Int("grpc-port", -1, "gRPC health port, 0 disables (overrides config)")
	flag.Parse()

	cfg, usedPath, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *httpPort > 0 {
		cfg.Server.Port = *httpPort
	}
	if *grpcPort >= 0 {
		cfg.Server.GRPCPort = *grpcPort
	}

	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, usedPath, logger); err != nil {
		logger.Error("API server exited", logging.Err(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, logger logging.Logger) error {
	logger.Info("starting AChE predictor API server",
		logging.String("version", Version),
		logging.String("commit", GitCommit),
		logging.String("config", configPath),
		logging.Int("http_port", cfg.Server.Port),
		logging.Int("grpc_port", cfg.Server.GRPCPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector, metrics, err := bootstrap.NewMetrics(cfg.Monitoring.Prometheus, logger)
	if err != nil {
		return err
	}
	infra, err := bootstrap.Open(ctx, cfg, "apiserver", metrics, logger)
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

	if cfg.Pipeline.Artifacts.Watch {
		w, err := startArtifactWatcher(ctx, infra, logger)
		if err != nil {
			return err
		}
		defer w.Stop()
	}
	if configPath != "" {
		err := config.Watch(configPath, func(next *config.Config) {
			svc.SetCoverage(next.Pipeline.Coverage)
			logger.Info("coverage policy reloaded",
				logging.Float64("min_ratio", next.Pipeline.Coverage.MinRatio),
				logging.String("mode", next.Pipeline.Coverage.Mode))
		}, func(err error) {
			logger.Warn("config reload rejected", logging.Err(err))
		})
		if err != nil {
			logger.Warn("config watch unavailable", logging.Err(err))
		}
	}

	doc, err := openapi.Load(ctx, Version)
	if err != nil {
		return err
	}

	maxUpload := cfg.Server.MaxUploadBytes
	routerCfg := httpserver.RouterConfig{
		PredictionHandler: handlers.NewPredictionHandler(svc, maxUpload, logger),
		MoleculeHandler:   handlers.NewMoleculeHandler(svc, logger),
		PageHandler:       handlers.NewPageHandler(svc, maxUpload, logger),
		HealthHandler:     handlers.NewHealthHandler(Version, metrics, infra.Checkers()...),
		OpenAPI:           doc,
		Logger:            logger,
		Metrics:           metrics,
		MetricsCollector:  collector,
		MetricsPath:       cfg.Monitoring.Prometheus.Path,
	}
	if jobs != nil {
		routerCfg.JobHandler = handlers.NewJobHandler(jobs, maxUpload, logger)
	}
	if cfg.Auth.Enabled {
		validator := middleware.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		routerCfg.AuthMiddleware = middleware.NewAuthMiddleware(validator, logger)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.Server.CORSOrigins
		routerCfg.CORS = &cors
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		rlCfg := middleware.DefaultRateLimitConfig()
		rlCfg.RequestsPerSecond = rl.RequestsPerSecond
		rlCfg.BurstSize = rl.Burst
		limiter := middleware.NewTokenBucketLimiter(rl.RequestsPerSecond, rl.Burst, rlCfg.CleanupInterval)
		defer limiter.Stop()
		routerCfg.RateLimiter = limiter
		routerCfg.RateLimit = rlCfg
	}

	httpSrv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)

	var grpcSrv *grpcserver.Server
	if cfg.Server.GRPCPort > 0 {
		checkers := make([]grpcserver.Checker, 0)
		for _, c := range infra.Checkers() {
			checkers = append(checkers, c)
		}
		grpcSrv, err = grpcserver.NewServer(cfg.Server,
			grpcserver.WithLogger(logger),
			grpcserver.WithMetrics(metrics),
			grpcserver.WithCheckers(checkers...),
		)
		if err != nil {
			return err
		}
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()
	if grpcSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := grpcSrv.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("server failed", logging.Err(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Stop(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", logging.Err(err))
	}
	if grpcSrv != nil {
		if err := grpcSrv.Stop(shutdownCtx); err != nil {
			logger.Error("gRPC server shutdown error", logging.Err(err))
		}
	}
	wg.Wait()
	logger.Info("servers stopped")
	return serveErr
}

// startArtifactWatcher reloads the model on file changes and drops cached
// scores of the replaced generation.
func startArtifactWatcher(ctx context.Context, infra *bootstrap.Infrastructure, logger logging.Logger) (*bioactivity.Watcher, error) {
	w, err := bioactivity.NewWatcher(infra.Artifacts, infra.Config.Pipeline.Artifacts.WatchDebounce, logger)
	if err != nil {
		return nil, err
	}
	var mu sync.Mutex
	var current string
	if snap := infra.Artifacts.Current(); snap != nil {
		current = snap.Digest
	}
	w.OnReload(func(snap *bioactivity.Snapshot, err error) {
		if err != nil || snap == nil {
			return
		}
		mu.Lock()
		prev := current
		current = snap.Digest
		mu.Unlock()
		if prev != snap.Digest {
			infra.PurgeCache(context.Background(), prev)
		}
	})
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

//Personal.AI order the ending
