package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "failed to acquire lock")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Mutex is a single-owner lock. While held, a watchdog extends it every
// ttl/3 so long descriptor runs do not lose it.
type Mutex struct {
	client *Client
	key    string
	value  string
	ttl    time.Duration
	logger logging.Logger

	watchdogCancel context.CancelFunc
	watchdogDone   chan struct{}
}

func NewMutex(client *Client, name string, ttl time.Duration, log logging.Logger) *Mutex {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Mutex{
		client: client,
		key:    client.Key("lock", name),
		value:  uuid.NewString(),
		ttl:    ttl,
		logger: log,
	}
}

// TryLock takes the lock without waiting.
func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	rdb, err := m.client.Underlying()
	if err != nil {
		return false, err
	}
	ok, err := rdb.SetNX(ctx, m.key, m.value, m.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock")
	}
	if ok {
		m.startWatchdog()
	}
	return ok, nil
}

// Lock retries TryLock every retryDelay until ctx ends.
func (m *Mutex) Lock(ctx context.Context, retryDelay time.Duration) error {
	for {
		ok, err := m.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrLockNotAcquired
		case <-time.After(retryDelay):
		}
	}
}

func (m *Mutex) Unlock(ctx context.Context) error {
	m.stopWatchdog()
	rdb, err := m.client.Underlying()
	if err != nil {
		return err
	}
	res, err := unlockScript.Run(ctx, rdb, []string{m.key}, m.value).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock")
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (m *Mutex) Extend(ctx context.Context) (bool, error) {
	rdb, err := m.client.Underlying()
	if err != nil {
		return false, err
	}
	res, err := extendScript.Run(ctx, rdb, []string{m.key}, m.value, m.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (m *Mutex) startWatchdog() {
	ctx, cancel := context.WithCancel(context.Background())
	m.watchdogCancel = cancel
	m.watchdogDone = make(chan struct{})
	go func() {
		defer close(m.watchdogDone)
		ticker := time.NewTicker(m.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := m.Extend(ctx)
				if err != nil && ctx.Err() == nil {
					m.logger.Warn("Lock watchdog failed to extend", logging.String("key", m.key), logging.Err(err))
				}
				if err == nil && !ok {
					m.logger.Warn("Lock lost before release", logging.String("key", m.key))
					return
				}
			}
		}
	}()
}

func (m *Mutex) stopWatchdog() {
	if m.watchdogCancel != nil {
		m.watchdogCancel()
		<-m.watchdogDone
		m.watchdogCancel = nil
	}
}

// JobLocker claims jobs so redelivered messages are not scored twice
// concurrently.
type JobLocker struct {
	client *Client
	ttl    time.Duration
	logger logging.Logger
}

var _ prediction.JobLocker = (*JobLocker)(nil)

func NewJobLocker(client *Client, ttl time.Duration, log logging.Logger) *JobLocker {
	return &JobLocker{client: client, ttl: ttl, logger: log}
}

func (l *JobLocker) TryClaim(ctx context.Context, jobID string) (func(), bool, error) {
	m := NewMutex(l.client, "job:"+jobID, l.ttl, l.logger)
	ok, err := m.TryLock(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Unlock(ctx); err != nil {
			l.logger.Warn("Failed to release job claim", logging.String("job_id", jobID), logging.Err(err))
		}
	}
	return release, true, nil
}

//Personal.AI order the ending
