package store

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis cache stores each entry as a JSON array of scores under
// `/<prefix>/scorecache/<key>`, expiring after the configured TTL.
// It lets several processes serving the same catalog share scores.

type redisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisScoreCache returns a cache backed by Redis.
// Zero ttl means entries never expire.
func NewRedisScoreCache(client *redis.Client, prefix string, ttl time.Duration) ScoreCache {
	return &redisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (m *redisCache) getRedisKey(key string) string {
	return path.Join("/", m.prefix, "scorecache", key)
}

func (m *redisCache) Get(ctx context.Context, key string) ([]float64, bool, error) {
	data, err := m.client.Get(ctx, m.getRedisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "failed to get scores from Redis")
	}

	var scores []float64
	if err := json.Unmarshal(data, &scores); err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal scores", "key", key, "err", err.Error())
		return nil, false, nil
	}
	return scores, true, nil
}

func (m *redisCache) Put(ctx context.Context, key string, scores []float64) error {
	data, err := json.Marshal(scores)
	if err != nil {
		return errors.Wrap(err, "failed to marshal scores")
	}
	if err := m.client.Set(ctx, m.getRedisKey(key), data, m.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to store scores in Redis")
	}
	return nil
}

func (m *redisCache) Reset(ctx context.Context) error {
	pattern := path.Join("/", m.prefix, "scorecache") + "/*"
	iter := m.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "failed to scan scores in Redis")
	}
	if len(keys) == 0 {
		return nil
	}
	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "failed to reset scores in Redis")
	}
	return nil
}
