package kafka

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")
)

// Handler processes one message. A nil return commits it.
type Handler func(ctx context.Context, msg *Message) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the message goes straight to
// the dead-letter topic.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ConsumerOptions tunes the consume loop.
type ConsumerOptions struct {
	Topic           string
	Concurrency     int
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	// HandlerTimeout bounds each handler attempt. Zero means no bound.
	HandlerTimeout time.Duration
	// DeadLetterTopic defaults to Topic + ".dlq".
	DeadLetterTopic string
}

// ConsumerMetrics holds consumer counters.
type ConsumerMetrics struct {
	MessagesConsumed     atomic.Int64
	MessagesProcessed    atomic.Int64
	MessagesFailed       atomic.Int64
	MessagesRetried      atomic.Int64
	MessagesDeadLettered atomic.Int64
	Lag                  atomic.Int64
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
	Stats() kafka.ReaderStats
}

type deadLetterPublisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// Consumer reads one topic in a consumer group and feeds a pool of handler
// goroutines. Each message is committed after its handler returns, whether
// it succeeded or was dead-lettered.
type Consumer struct {
	reader  ReaderInterface
	dlq     deadLetterPublisher
	handler Handler
	opts    ConsumerOptions
	logger  logging.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	metrics *ConsumerMetrics
}

// NewConsumer joins cfg.GroupID on opts.Topic. dlq may be nil, in which case
// exhausted messages are logged and dropped.
func NewConsumer(cfg config.KafkaConfig, opts ConsumerOptions, handler Handler, dlq *Producer, logger logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "kafka group id required")
	}
	if opts.Topic == "" {
		opts.Topic = cfg.RequestTopic
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = cfg.RetryBackoff
	}

	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	tlsCfg, err := tlsConfig(cfg)
	if err != nil {
		return nil, err
	}
	dialer.TLS = tlsCfg
	mech, err := saslMechanism(cfg)
	if err != nil {
		return nil, err
	}
	dialer.SASLMechanism = mech

	maxBytes := cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		Topic:             opts.Topic,
		MinBytes:          1,
		MaxBytes:          maxBytes,
		MaxWait:           time.Second,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		StartOffset:       kafka.FirstOffset,
		Dialer:            dialer,
	})

	var pub deadLetterPublisher
	if dlq != nil {
		pub = dlq
	}
	return newConsumer(reader, pub, handler, opts, logger), nil
}

func newConsumer(reader ReaderInterface, dlq deadLetterPublisher, handler Handler, opts ConsumerOptions, logger logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.MaxRetryBackoff <= 0 {
		opts.MaxRetryBackoff = 30 * time.Second
	}
	if opts.DeadLetterTopic == "" && opts.Topic != "" {
		opts.DeadLetterTopic = DeadLetterTopic(opts.Topic)
	}
	return &Consumer{
		reader:  reader,
		dlq:     dlq,
		handler: handler,
		opts:    opts,
		logger:  logger.Named("kafka.consumer").With(logging.String("topic", opts.Topic)),
		metrics: &ConsumerMetrics{},
	}
}

// Start launches the fetch loop and the handler pool. It returns at once.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	work := make(chan kafka.Message)
	c.wg.Add(1 + c.opts.Concurrency)
	go c.fetchLoop(ctx, work)
	for i := 0; i < c.opts.Concurrency; i++ {
		go c.workLoop(ctx, work)
	}
	c.logger.Info("Kafka consumer started", logging.Int("concurrency", c.opts.Concurrency))
	return nil
}

func (c *Consumer) fetchLoop(ctx context.Context, work chan<- kafka.Message) {
	defer c.wg.Done()
	defer close(work)
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("FetchMessage failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.metrics.MessagesConsumed.Add(1)
		if m.HighWaterMark > 0 {
			c.metrics.Lag.Store(m.HighWaterMark - m.Offset - 1)
		}
		select {
		case work <- m:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) workLoop(ctx context.Context, work <-chan kafka.Message) {
	defer c.wg.Done()
	// In-flight handlers run to completion on shutdown; only the retry
	// waits observe ctx.
	hctx := context.WithoutCancel(ctx)
	for m := range work {
		if err := c.process(ctx, hctx, fromKafkaMessage(m)); err != nil {
			// Shutdown during a retry wait; leave the offset for redelivery.
			continue
		}
		if err := c.reader.CommitMessages(context.WithoutCancel(ctx), m); err != nil {
			c.logger.Error("CommitMessages failed", logging.Int64("offset", m.Offset), logging.Err(err))
		}
	}
}

// process runs the handler on hctx with retries. It returns an error only
// when ctx ended before the message was settled.
func (c *Consumer) process(ctx, hctx context.Context, msg *Message) error {
	backoff := c.opts.RetryBackoff
	var err error
	attempts := 0
	for {
		attempts++
		err = c.attempt(hctx, msg)
		if err == nil {
			c.metrics.MessagesProcessed.Add(1)
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) || attempts > c.opts.MaxRetries {
			break
		}
		c.metrics.MessagesRetried.Add(1)
		c.logger.Warn("Handler failed, retrying",
			logging.Int64("offset", msg.Offset),
			logging.Int("attempt", attempts),
			logging.Duration("backoff", backoff),
			logging.Err(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.opts.MaxRetryBackoff {
			backoff = c.opts.MaxRetryBackoff
		}
	}

	c.metrics.MessagesFailed.Add(1)
	c.logger.Error("Message processing failed",
		logging.Int64("offset", msg.Offset),
		logging.Int("attempts", attempts),
		logging.Err(err))
	c.deadLetter(hctx, msg, err, attempts)
	return nil
}

func (c *Consumer) attempt(ctx context.Context, msg *Message) error {
	if c.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.HandlerTimeout)
		defer cancel()
	}
	return c.handler(ctx, msg)
}

func (c *Consumer) deadLetter(ctx context.Context, msg *Message, cause error, attempts int) {
	if c.dlq == nil || c.opts.DeadLetterTopic == "" {
		return
	}
	headers := make(map[string]string, len(msg.Headers)+5)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["original_topic"] = msg.Topic
	headers["original_partition"] = strconv.Itoa(msg.Partition)
	headers["original_offset"] = strconv.FormatInt(msg.Offset, 10)
	headers["attempts"] = strconv.Itoa(attempts)
	headers["error_message"] = cause.Error()

	dl := &Message{
		Topic:   c.opts.DeadLetterTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
	if err := c.dlq.Publish(ctx, dl); err != nil {
		c.logger.Error("Failed to send to dead letter topic", logging.Err(err))
		return
	}
	c.metrics.MessagesDeadLettered.Add(1)
}

// Metrics returns the live counters.
func (c *Consumer) Metrics() *ConsumerMetrics { return c.metrics }

// Close stops fetching, lets in-flight handlers finish and closes the reader.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	err := c.reader.Close()
	c.logger.Info("Kafka consumer closed",
		logging.Int64("consumed", c.metrics.MessagesConsumed.Load()),
		logging.Int64("dead_lettered", c.metrics.MessagesDeadLettered.Load()))
	return err
}

//Personal.AI order the ending
