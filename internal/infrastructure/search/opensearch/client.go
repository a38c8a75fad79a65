package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

var ErrConnectionFailed = errors.New(errors.ErrCodeExternalService, "opensearch connection failed")

const (
	defaultMaxRetries     = 3
	defaultRetryBackoff   = 100 * time.Millisecond
	defaultHealthInterval = 30 * time.Second
)

// Client manages the OpenSearch connection and tracks cluster health.
type Client struct {
	client  *opensearch.Client
	config  config.OpenSearchConfig
	logger  logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc
}

// NewClient connects, pings once, and starts a background health probe.
func NewClient(ctx context.Context, cfg config.OpenSearchConfig, logger logging.Logger) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "opensearch addresses are required")
	}
	if cfg.Index == "" {
		cfg.Index = config.DefaultOpenSearchIndex
	}

	transport := &http.Transport{MaxIdleConnsPerHost: 10}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for dev clusters
	}
	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		MaxRetries:    defaultMaxRetries,
		RetryBackoff:  func(int) time.Duration { return defaultRetryBackoff },
		RetryOnStatus: []int{502, 503, 504, 429},
		Transport:     transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create opensearch client")
	}

	c := newClient(osClient, cfg, logger)
	if err := c.Ping(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, ErrConnectionFailed.Message)
	}

	hctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.healthLoop(hctx, defaultHealthInterval)
	return c, nil
}

func newClient(osClient *opensearch.Client, cfg config.OpenSearchConfig, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Index == "" {
		cfg.Index = config.DefaultOpenSearchIndex
	}
	return &Client{client: osClient, config: cfg, logger: logger.Named("opensearch")}
}

// Ping checks the cluster and records the outcome.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := opensearchapi.PingRequest{}.Do(ctx, c.client)
	if err != nil {
		c.healthy.Store(false)
		return err
	}
	defer resp.Body.Close()
	if resp.IsError() {
		c.healthy.Store(false)
		return errors.New(errors.ErrCodeExternalService, "opensearch ping returned error status").
			WithDetail(resp.Status())
	}
	c.healthy.Store(true)
	return nil
}

func (c *Client) IsHealthy() bool { return c.healthy.Load() }

// Index is the name results are written to.
func (c *Client) Index() string { return c.config.Index }

// Close stops the health probe.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.logger.Info("OpenSearch client closed")
	return nil
}

func (c *Client) healthLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev := c.healthy.Load()
			err := c.Ping(ctx)
			curr := c.healthy.Load()
			if prev && !curr {
				c.logger.Error("OpenSearch cluster became unhealthy", logging.Err(err))
			} else if !prev && curr {
				c.logger.Info("OpenSearch cluster recovered")
			}
		}
	}
}

//Personal.AI order the ending
