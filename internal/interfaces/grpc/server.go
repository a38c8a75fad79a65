// Package grpc exposes the standard gRPC health service for load balancers
// and service meshes. Component readiness mirrors the HTTP /readyz checks.
package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

const (
	defaultMaxRecvMsgSize  = 4 * 1024 * 1024
	defaultGracefulTimeout = 10 * time.Second
	defaultProbeInterval   = 15 * time.Second
	probeTimeout           = 5 * time.Second
)

var defaultKeepaliveParams = keepalive.ServerParameters{
	MaxConnectionIdle:     15 * time.Minute,
	MaxConnectionAge:      30 * time.Minute,
	MaxConnectionAgeGrace: 5 * time.Second,
	Time:                  5 * time.Minute,
	Timeout:               1 * time.Second,
}

var defaultKeepalivePolicy = keepalive.EnforcementPolicy{
	MinTime:             5 * time.Second,
	PermitWithoutStream: true,
}

// Checker reports the health of one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Option configures the Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger          logging.Logger
	metrics         *prometheus.AppMetrics
	checkers        []Checker
	probeInterval   time.Duration
	gracefulTimeout time.Duration
	listener        net.Listener
}

func WithLogger(l logging.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(o *serverOptions) { o.metrics = m }
}

// WithCheckers drives the per-component and overall serving status.
func WithCheckers(checkers ...Checker) Option {
	return func(o *serverOptions) { o.checkers = append(o.checkers, checkers...) }
}

// WithProbeInterval sets how often checkers run.
func WithProbeInterval(d time.Duration) Option {
	return func(o *serverOptions) {
		if d > 0 {
			o.probeInterval = d
		}
	}
}

// WithGracefulTimeout sets the graceful shutdown timeout.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *serverOptions) {
		if d > 0 {
			o.gracefulTimeout = d
		}
	}
}

// WithListener serves on ln instead of binding host:grpc_port.
func WithListener(ln net.Listener) Option {
	return func(o *serverOptions) { o.listener = ln }
}

// Server wraps a grpc.Server carrying the health and reflection services.
type Server struct {
	grpcServer   *grpc.Server
	listener     net.Listener
	opts         *serverOptions
	healthServer *health.Server

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewServer binds host:grpc_port from cfg and registers the health service.
// Reflection is registered only in debug mode.
func NewServer(cfg config.ServerConfig, opts ...Option) (*Server, error) {
	sopts := &serverOptions{
		probeInterval:   defaultProbeInterval,
		gracefulTimeout: defaultGracefulTimeout,
	}
	for _, o := range opts {
		o(sopts)
	}
	if sopts.logger == nil {
		sopts.logger = logging.NewNopLogger()
	}
	if sopts.metrics == nil {
		sopts.metrics = prometheus.NewNoopAppMetrics()
	}
	sopts.logger = sopts.logger.Named("grpc")

	lis := sopts.listener
	if lis == nil {
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.GRPCPort))
		var err error
		if lis, err = net.Listen("tcp", addr); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to listen").WithDetail(addr)
		}
	}

	gs := grpc.NewServer(
		grpc.MaxRecvMsgSize(defaultMaxRecvMsgSize),
		grpc.KeepaliveParams(defaultKeepaliveParams),
		grpc.KeepaliveEnforcementPolicy(defaultKeepalivePolicy),
		grpc.ChainUnaryInterceptor(
			recoveryUnaryInterceptor(sopts.logger),
			loggingUnaryInterceptor(sopts.logger),
			metricsUnaryInterceptor(sopts.metrics),
		),
		grpc.ChainStreamInterceptor(
			recoveryStreamInterceptor(sopts.logger),
			metricsStreamInterceptor(sopts.metrics),
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, c := range sopts.checkers {
		hs.SetServingStatus(c.Name(), healthpb.HealthCheckResponse_UNKNOWN)
	}

	if cfg.Mode == "debug" {
		reflection.Register(gs)
		sopts.logger.Info("gRPC reflection registered")
	}

	return &Server{
		grpcServer:   gs,
		listener:     lis,
		opts:         sopts,
		healthServer: hs,
		stopped:      make(chan struct{}),
	}, nil
}

// Start probes dependencies in the background and serves until Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeConflict, "grpc server already started")
	}
	s.started = true
	s.mu.Unlock()

	if len(s.opts.checkers) > 0 {
		s.probe(context.Background())
		go s.probeLoop()
	}

	s.opts.logger.Info("gRPC server listening", logging.String("addr", s.listener.Addr().String()))
	if err := s.grpcServer.Serve(s.listener); err != nil && err != grpc.ErrServerStopped {
		return errors.Wrap(err, errors.ErrCodeInternal, "grpc server failed")
	}
	return nil
}

func (s *Server) probeLoop() {
	ticker := time.NewTicker(s.opts.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.probe(context.Background())
		case <-s.stopped:
			return
		}
	}
}

// probe runs every checker once. The overall status is NOT_SERVING while
// any component is down.
func (s *Server) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(s.opts.checkers))
	for _, c := range s.opts.checkers {
		go func(c Checker) { results <- result{c.Name(), c.Check(ctx)} }(c)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	for range s.opts.checkers {
		r := <-results
		st, up := healthpb.HealthCheckResponse_SERVING, 1.0
		if r.err != nil {
			st, up = healthpb.HealthCheckResponse_NOT_SERVING, 0
			overall = healthpb.HealthCheckResponse_NOT_SERVING
			s.opts.logger.Warn("Dependency unhealthy", logging.String("component", r.name), logging.Err(r.err))
		}
		s.opts.metrics.HealthCheckStatus.WithLabelValues(r.name).Set(up)
		s.healthServer.SetServingStatus(r.name, st)
	}

	select {
	case <-s.stopped:
		return
	default:
	}
	s.healthServer.SetServingStatus("", overall)
}

// Stop drains in-flight calls, forcing a stop when the graceful period
// expires. Health flips to NOT_SERVING first so balancers drain traffic.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopped) })
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return s.listener.Close()
	}

	s.healthServer.Shutdown()

	gracefulCtx, cancel := context.WithTimeout(ctx, s.opts.gracefulTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.opts.logger.Info("gRPC server stopped")
	case <-gracefulCtx.Done():
		s.opts.logger.Warn("gRPC graceful stop timed out, forcing stop")
		s.grpcServer.Stop()
	}
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func recoveryUnaryInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("gRPC panic recovered",
					logging.String("method", info.FullMethod),
					logging.String("panic", fmt.Sprint(r)),
					logging.String("stack", string(debug.Stack())),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func recoveryStreamInterceptor(logger logging.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("gRPC stream panic recovered",
					logging.String("method", info.FullMethod),
					logging.String("panic", fmt.Sprint(r)),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}

func isHealthCheck(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.v1.Health/")
}

// loggingUnaryInterceptor logs every call except health probes.
func loggingUnaryInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isHealthCheck(info.FullMethod) {
			return handler(ctx, req)
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("gRPC request",
			logging.String("method", info.FullMethod),
			logging.Duration("duration", time.Since(start)),
			logging.String("code", status.Code(err).String()),
		)
		return resp, err
	}
}

func metricsUnaryInterceptor(m *prometheus.AppMetrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		service, method := splitMethodName(info.FullMethod)
		prometheus.RecordGRPCRequest(m, service, method, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

func metricsStreamInterceptor(m *prometheus.AppMetrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		service, method := splitMethodName(info.FullMethod)
		prometheus.RecordGRPCRequest(m, service, method, status.Code(err).String(), time.Since(start))
		return err
	}
}

// splitMethodName splits "/package.Service/Method".
func splitMethodName(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	idx := strings.LastIndex(fullMethod, "/")
	if idx < 0 {
		return "unknown", fullMethod
	}
	return fullMethod[:idx], fullMethod[idx+1:]
}

//Personal.AI order the ending
