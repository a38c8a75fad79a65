package kafka

import (
	"context"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

type publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// JobBus publishes job requests and completion events as JSON envelopes
// keyed by job ID.
type JobBus struct {
	producer       publisher
	requestTopic   string
	completedTopic string
	source         string
}

var _ prediction.JobPublisher = (*JobBus)(nil)

func NewJobBus(p *Producer, cfg config.KafkaConfig, source string) *JobBus {
	return newJobBus(p, cfg, source)
}

func newJobBus(p publisher, cfg config.KafkaConfig, source string) *JobBus {
	return &JobBus{
		producer:       p,
		requestTopic:   cfg.RequestTopic,
		completedTopic: cfg.CompletedTopic,
		source:         source,
	}
}

func (b *JobBus) PublishRequest(ctx context.Context, req *prediction.JobRequest) error {
	env, err := NewEventEnvelope(EventPredictionRequested, b.source, req)
	if err != nil {
		return err
	}
	env.TraceID = req.RequestID
	msg, err := env.ToMessage(b.requestTopic, req.JobID)
	if err != nil {
		return err
	}
	return b.producer.Publish(ctx, msg)
}

func (b *JobBus) PublishCompleted(ctx context.Context, ev *prediction.JobCompleted) error {
	if b.completedTopic == "" {
		return nil
	}
	env, err := NewEventEnvelope(EventPredictionCompleted, b.source, ev)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(b.completedTopic, ev.JobID)
	if err != nil {
		return err
	}
	return b.producer.Publish(ctx, msg)
}

// JobRequestHandler adapts handle to the consumer. Undecodable messages are
// marked permanent so they go to the dead-letter topic without retries; so
// are payload errors returned by handle.
func JobRequestHandler(handle func(ctx context.Context, req *prediction.JobRequest) error) Handler {
	return func(ctx context.Context, msg *Message) error {
		env, err := MessageToEventEnvelope(msg)
		if err != nil {
			return Permanent(err)
		}
		if env.EventType != EventPredictionRequested {
			return Permanent(errors.Newf(errors.ErrCodeJobPayload, "unexpected event type %q", env.EventType))
		}
		var req prediction.JobRequest
		if err := env.DecodePayload(&req); err != nil {
			return Permanent(err)
		}
		if req.RequestID == "" {
			req.RequestID = env.TraceID
		}
		if err := handle(ctx, &req); err != nil {
			if errors.IsCode(err, errors.ErrCodeJobPayload) {
				return Permanent(err)
			}
			return err
		}
		return nil
	}
}

//Personal.AI order the ending
