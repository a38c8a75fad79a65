package milvus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

// MilvusClientFactory defines the signature for creating a Milvus client
type MilvusClientFactory func(ctx context.Context, conf client.Config) (client.Client, error)

// milvusNewClient is a variable to allow mocking in tests
var milvusNewClient MilvusClientFactory = client.NewClient

var (
	ErrConnectionFailed = errors.New(errors.ErrCodeExternalService, "milvus connection failed")
	ErrUnhealthy        = errors.New(errors.ErrCodeServiceUnavailable, "milvus unhealthy")
)

const (
	connectTimeout   = 10 * time.Second
	healthInterval   = 30 * time.Second
	keepAliveTime    = 60 * time.Second
	keepAliveTimeout = 20 * time.Second
	reconnectAfter   = 3
)

// Client manages the Milvus connection, reconnecting after repeated failed
// health checks.
type Client struct {
	milvusClient client.Client
	config       config.MilvusConfig
	logger       logging.Logger
	healthy      atomic.Bool
	cancel       context.CancelFunc
	mu           sync.RWMutex
}

// NewClient connects and verifies health.
func NewClient(ctx context.Context, cfg config.MilvusConfig, logger logging.Logger) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New(errors.ErrCodeValidation, "milvus address is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	applyDefaults(&cfg)

	mc, err := connect(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to create milvus client")
	}
	c := &Client{milvusClient: mc, config: cfg, logger: logger.Named("milvus")}
	if err := c.CheckHealth(ctx); err != nil {
		_ = mc.Close()
		return nil, ErrConnectionFailed
	}

	hctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.healthLoop(hctx)

	c.logger.Info("Milvus client connected", logging.String("address", cfg.Address))
	return c, nil
}

func applyDefaults(cfg *config.MilvusConfig) {
	if cfg.DBName == "" {
		cfg.DBName = "default"
	}
	if cfg.Collection == "" {
		cfg.Collection = config.DefaultMilvusCollection
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = config.DefaultMilvusDimension
	}
	if cfg.DefaultTopK == 0 {
		cfg.DefaultTopK = config.DefaultMilvusTopK
	}
}

func connect(ctx context.Context, cfg config.MilvusConfig) (client.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return milvusNewClient(connectCtx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		DialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                keepAliveTime,
				Timeout:             keepAliveTimeout,
				PermitWithoutStream: true,
			}),
		},
	})
}

// CheckHealth probes the server and records the outcome.
func (c *Client) CheckHealth(ctx context.Context) error {
	mc := c.api()
	if mc == nil {
		return ErrConnectionFailed
	}
	state, err := mc.CheckHealth(ctx)
	if err != nil || (state != nil && !state.IsHealthy) {
		c.healthy.Store(false)
		if err != nil {
			c.logger.Warn("Milvus health check failed", logging.Err(err))
		}
		return ErrUnhealthy
	}
	c.healthy.Store(true)
	return nil
}

func (c *Client) IsHealthy() bool { return c.healthy.Load() }

func (c *Client) api() client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.milvusClient
}

// Close stops the health loop and the connection.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.milvusClient != nil {
		err = c.milvusClient.Close()
		c.milvusClient = nil
	}
	c.logger.Info("Milvus client closed")
	return err
}

func (c *Client) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.probe(ctx, &failures) {
				return
			}
		}
	}
}

// probe runs one health tick. It reports true when the client was closed.
func (c *Client) probe(ctx context.Context, failures *int) bool {
	prev := c.healthy.Load()
	err := c.CheckHealth(ctx)
	if errors.Is(err, ErrConnectionFailed) {
		return true
	}
	curr := c.healthy.Load()
	switch {
	case prev && !curr:
		*failures++
		c.logger.Error("Milvus became unhealthy", logging.Err(err))
	case !prev && curr:
		*failures = 0
		c.logger.Info("Milvus recovered")
	case !curr:
		*failures++
	default:
		*failures = 0
	}

	if *failures >= reconnectAfter {
		c.logger.Warn("Milvus consecutive failures, reconnecting", logging.Int("failures", *failures))
		if err := c.reconnect(ctx); err != nil {
			c.logger.Error("Milvus reconnect failed", logging.Err(err))
		} else {
			*failures = 0
		}
	}
	return false
}

func (c *Client) reconnect(ctx context.Context) error {
	mc, err := connect(ctx, c.config)
	if err != nil {
		return err
	}
	c.mu.Lock()
	old := c.milvusClient
	c.milvusClient = mc
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	c.logger.Warn("Milvus client reconnected")
	return nil
}

//Personal.AI order the ending
