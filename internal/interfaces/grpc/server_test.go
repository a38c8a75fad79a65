package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
)

type stubChecker struct {
	name string
	down atomic.Bool
}

func (c *stubChecker) Name() string { return c.name }

func (c *stubChecker) Check(context.Context) error {
	if c.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func startServer(t *testing.T, opts ...Option) (*Server, healthpb.HealthClient) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s, err := NewServer(config.ServerConfig{}, append(opts, WithListener(ln))...)
	require.NoError(t, err)
	go func() { _ = s.Start() }()
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	conn, err := grpc.Dial(s.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return s, healthpb.NewHealthClient(conn)
}

func checkStatus(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service}, grpc.WaitForReady(true))
	require.NoError(t, err)
	return resp.Status
}

func TestServer_HealthServing(t *testing.T) {
	_, client := startServer(t)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, client, ""))
}

func TestServer_ComponentStatusFollowsCheckers(t *testing.T) {
	redis := &stubChecker{name: "redis"}
	postgres := &stubChecker{name: "postgres"}
	redis.down.Store(true)

	s, client := startServer(t, WithCheckers(redis, postgres), WithProbeInterval(time.Hour))

	require.Eventually(t, func() bool {
		return checkStatus(t, client, "redis") == healthpb.HealthCheckResponse_NOT_SERVING
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, client, "postgres"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, client, ""))

	redis.down.Store(false)
	s.probe(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, client, "redis"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, client, ""))
}

func TestServer_UnknownService(t *testing.T) {
	_, client := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "nope"}, grpc.WaitForReady(true))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServer_DoubleStart(t *testing.T) {
	s, client := startServer(t)
	checkStatus(t, client, "")
	assert.Error(t, s.Start())
}

func TestServer_StopBeforeStart(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s, err := NewServer(config.ServerConfig{}, WithListener(ln))
	require.NoError(t, err)
	assert.NoError(t, s.Stop(context.Background()))
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	interceptor := recoveryUnaryInterceptor(logging.NewLoggerFromCore(core))

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Boom"},
		func(context.Context, any) (any, error) { panic("boom") })

	assert.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "/svc/Boom", logs.All()[0].ContextMap()["method"])
}

func TestLoggingUnaryInterceptor_SkipsHealthChecks(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	interceptor := loggingUnaryInterceptor(logging.NewLoggerFromCore(core))
	ok := func(context.Context, any) (any, error) { return "ok", nil }

	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, ok)
	assert.Equal(t, 0, logs.Len())

	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Call"}, ok)
	assert.Equal(t, 1, logs.Len())
}

func TestSplitMethodName(t *testing.T) {
	tests := []struct {
		in, service, method string
	}{
		{"/grpc.health.v1.Health/Check", "grpc.health.v1.Health", "Check"},
		{"NoSlash", "unknown", "NoSlash"},
	}
	for _, tt := range tests {
		s, m := splitMethodName(tt.in)
		assert.Equal(t, tt.service, s)
		assert.Equal(t, tt.method, m)
	}
}

//Personal.AI order the ending
