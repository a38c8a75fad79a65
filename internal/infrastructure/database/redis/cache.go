package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

// ScoreCache stores predicted pIC50 values keyed by model digest and SMILES.
// A new model generation has a new digest, so stale scores are never served.
type ScoreCache struct {
	client *Client
	ttl    time.Duration
	logger logging.Logger
	group  singleflight.Group
	jitter func() float64
}

var _ prediction.ScoreCache = (*ScoreCache)(nil)

func NewScoreCache(client *Client, ttl time.Duration, log logging.Logger) *ScoreCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ScoreCache{client: client, ttl: ttl, logger: log, jitter: rand.Float64}
}

func (c *ScoreCache) key(digest, smiles string) string {
	sum := sha256.Sum256([]byte(smiles))
	return c.client.Key("score", digest, hex.EncodeToString(sum[:16]))
}

// GetMany looks up every SMILES in one MGET. Identical concurrent lookups,
// such as a resubmitted upload, share one round trip.
func (c *ScoreCache) GetMany(ctx context.Context, digest string, smiles []string) (map[string]float64, error) {
	if len(smiles) == 0 {
		return map[string]float64{}, nil
	}
	h := sha256.New()
	h.Write([]byte(digest))
	for _, s := range smiles {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	flightKey := hex.EncodeToString(h.Sum(nil))

	v, err, _ := c.group.Do(flightKey, func() (interface{}, error) {
		return c.mget(ctx, digest, smiles)
	})
	if err != nil {
		return nil, err
	}
	shared := v.(map[string]float64)
	out := make(map[string]float64, len(shared))
	for k, val := range shared {
		out[k] = val
	}
	return out, nil
}

func (c *ScoreCache) mget(ctx context.Context, digest string, smiles []string) (map[string]float64, error) {
	rdb, err := c.client.Underlying()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(smiles))
	for i, s := range smiles {
		keys[i] = c.key(digest, s)
	}
	vals, err := rdb.MGet(ctx, keys...).Result()
	if err != nil && err != redis.Nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read cached scores")
	}
	out := make(map[string]float64, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			c.logger.Warn("Ignoring malformed cached score", logging.String("key", keys[i]))
			continue
		}
		out[smiles[i]] = f
	}
	return out, nil
}

// SetMany writes scores in one pipeline. Entries expire within ten percent
// of the configured TTL of each other.
func (c *ScoreCache) SetMany(ctx context.Context, digest string, values map[string]float64) error {
	if len(values) == 0 {
		return nil
	}
	rdb, err := c.client.Underlying()
	if err != nil {
		return err
	}
	smiles := make([]string, 0, len(values))
	for s := range values {
		smiles = append(smiles, s)
	}
	sort.Strings(smiles)

	ttl := c.jitterTTL()
	pipe := rdb.Pipeline()
	for _, s := range smiles {
		pipe.Set(ctx, c.key(digest, s), strconv.FormatFloat(values[s], 'g', -1, 64), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to write cached scores")
	}
	return nil
}

func (c *ScoreCache) jitterTTL() time.Duration {
	jitter := float64(c.ttl) * 0.1 * c.jitter()
	return c.ttl - time.Duration(jitter)
}

// Purge removes every cached score for digest. It returns the number deleted.
func (c *ScoreCache) Purge(ctx context.Context, digest string) (int64, error) {
	rdb, err := c.client.Underlying()
	if err != nil {
		return 0, err
	}
	match := c.client.Key("score", digest, "*")
	var cursor uint64
	var deleted int64
	for {
		keys, next, err := rdb.Scan(ctx, cursor, match, 500).Result()
		if err != nil {
			return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to scan cached scores")
		}
		if len(keys) > 0 {
			n, err := rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete cached scores")
			}
			deleted += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	if deleted > 0 {
		c.logger.Info("Purged cached scores", logging.String("digest", shortDigest(digest)), logging.Int64("keys", deleted))
	}
	return deleted, nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return strings.TrimSpace(d)
}

//Personal.AI order the ending
