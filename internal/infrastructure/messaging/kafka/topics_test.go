package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
)

type mockKafkaConn struct {
	createFunc func(topics ...kafka.TopicConfig) error
	readFunc   func(topics ...string) ([]kafka.Partition, error)
	created    []kafka.TopicConfig
}

func (m *mockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if m.createFunc != nil {
		if err := m.createFunc(topics...); err != nil {
			return err
		}
	}
	m.created = append(m.created, topics...)
	return nil
}

func (m *mockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.readFunc != nil {
		return m.readFunc(topics...)
	}
	return nil, nil
}

func (m *mockKafkaConn) Close() error { return nil }

func newTestTopicManager(conn ConnInterface) *TopicManager {
	return &TopicManager{conn: conn, logger: logging.NewNopLogger()}
}

func testKafkaConfig() config.KafkaConfig {
	return config.KafkaConfig{
		Brokers:         []string{"localhost:9092"},
		GroupID:         "ache-worker",
		RequestTopic:    "ache.prediction.requested",
		CompletedTopic:  "ache.prediction.completed",
		MaxMessageBytes: 10 << 20,
	}
}

func TestJobTopics(t *testing.T) {
	topics := JobTopics(testKafkaConfig())
	require.Len(t, topics, 3)
	assert.Equal(t, "ache.prediction.requested", topics[0].Name)
	assert.Equal(t, "ache.prediction.completed", topics[1].Name)
	assert.Equal(t, "ache.prediction.requested.dlq", topics[2].Name)
}

func TestTopicManager_EnsureTopics(t *testing.T) {
	conn := &mockKafkaConn{
		readFunc: func(topics ...string) ([]kafka.Partition, error) {
			if topics[0] == "ache.prediction.completed" {
				return []kafka.Partition{{Topic: topics[0]}}, nil
			}
			return nil, kafka.UnknownTopicOrPartition
		},
	}
	m := newTestTopicManager(conn)

	require.NoError(t, m.EnsureTopics(context.Background(), JobTopics(testKafkaConfig())))
	require.Len(t, conn.created, 2, "existing topic is left alone")
	assert.Equal(t, "ache.prediction.requested", conn.created[0].Topic)

	var retention string
	for _, e := range conn.created[0].ConfigEntries {
		if e.ConfigName == "retention.ms" {
			retention = e.ConfigValue
		}
	}
	assert.Equal(t, "604800000", retention)
}

func TestTopicManager_CreateTopic(t *testing.T) {
	t.Run("already exists", func(t *testing.T) {
		conn := &mockKafkaConn{createFunc: func(...kafka.TopicConfig) error { return kafka.TopicAlreadyExists }}
		assert.NoError(t, newTestTopicManager(conn).CreateTopic(context.Background(), TopicConfig{Name: "t", NumPartitions: 1, ReplicationFactor: 1}))
	})
	t.Run("failure", func(t *testing.T) {
		conn := &mockKafkaConn{createFunc: func(...kafka.TopicConfig) error { return errors.New("not controller") }}
		err := newTestTopicManager(conn).CreateTopic(context.Background(), TopicConfig{Name: "t", NumPartitions: 1, ReplicationFactor: 1})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExternalService))
	})
	t.Run("invalid", func(t *testing.T) {
		err := newTestTopicManager(&mockKafkaConn{}).CreateTopic(context.Background(), TopicConfig{Name: "t"})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
	})
}

func TestEventEnvelope_RoundTrip(t *testing.T) {
	type payload struct {
		JobID string `json:"job_id"`
	}
	env, err := NewEventEnvelope(EventPredictionRequested, "apiserver", payload{JobID: "123"})
	require.NoError(t, err)
	env.TraceID = "req-9"

	msg, err := env.ToMessage("topic", "123")
	require.NoError(t, err)
	assert.Equal(t, []byte("123"), msg.Key)
	assert.Equal(t, "req-9", msg.Headers["trace_id"])
	assert.Equal(t, SchemaVersion, msg.Headers["schema_version"])

	decoded, err := MessageToEventEnvelope(&Message{Value: msg.Value})
	require.NoError(t, err)
	var p payload
	require.NoError(t, decoded.DecodePayload(&p))
	assert.Equal(t, "123", p.JobID)
	assert.Equal(t, env.EventID, decoded.EventID)
}

func TestMessageToEventEnvelope_Invalid(t *testing.T) {
	_, err := MessageToEventEnvelope(&Message{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeJobPayload))
	_, err = MessageToEventEnvelope(&Message{Value: []byte("{")})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeJobPayload))

	env := &EventEnvelope{}
	assert.Error(t, env.DecodePayload(&struct{}{}))
}

//Personal.AI order the ending
