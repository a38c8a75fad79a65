package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/ache-predictor/pkg/errors"
)

func newMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr
}

func newTestClient(t *testing.T, addr string) *Client {
	t.Helper()
	client, err := NewClient(config.RedisConfig{Mode: "standalone", Addr: addr}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClient_Standalone_Success(t *testing.T) {
	mr := newMiniRedis(t)
	client := newTestClient(t, mr.Addr())
	assert.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "ache:job:1", client.Key("job", "1"))
}

func TestNewClient_AddrFromAddrs(t *testing.T) {
	mr := newMiniRedis(t)
	client, err := NewClient(config.RedisConfig{Addrs: []string{mr.Addr()}, KeyPrefix: "x:"}, logging.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "x:a", client.Key("a"))
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	_, err := NewClient(config.RedisConfig{Mode: "standalone", Addr: "127.0.0.1:1"}, logging.NewNopLogger())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}

func TestClient_Close(t *testing.T) {
	mr := newMiniRedis(t)
	client := newTestClient(t, mr.Addr())

	require.NoError(t, client.Close())
	assert.NoError(t, client.Close())
	assert.ErrorIs(t, client.Ping(context.Background()), ErrClientClosed)
	_, err := client.Underlying()
	assert.ErrorIs(t, err, ErrClientClosed)
}

//Personal.AI order the ending
