package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

// JobStore keeps job records as JSON under job:<id>. Records expire after
// the configured TTL; every Put refreshes it.
type JobStore struct {
	client *Client
	ttl    time.Duration
}

var _ prediction.JobStore = (*JobStore)(nil)

func NewJobStore(client *Client, ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &JobStore{client: client, ttl: ttl}
}

func (s *JobStore) Put(ctx context.Context, job *prediction.Job) error {
	rdb, err := s.client.Underlying()
	if err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode job")
	}
	if err := rdb.Set(ctx, s.client.Key("job", job.ID), data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to store job")
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*prediction.Job, error) {
	rdb, err := s.client.Underlying()
	if err != nil {
		return nil, err
	}
	data, err := rdb.Get(ctx, s.client.Key("job", id)).Bytes()
	if err == redis.Nil {
		return nil, errors.New(errors.ErrCodeJobNotFound, "job not found").WithDetail(id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to load job")
	}
	var job prediction.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode job")
	}
	return &job, nil
}

//Personal.AI order the ending
