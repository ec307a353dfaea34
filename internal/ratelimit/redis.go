package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyBucket = "ratelimit:%s"

	maxWatchRetries = 5
)

// RedisStore keeps one JSON array of timestamps per key. Updates use WATCH/MULTI so concurrent
// writers to the same bucket never lose an attempt. Every write resets a one hour expiry, so
// untouched buckets disappear on their own.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Attempt(ctx context.Context, key string, now time.Time, rule Rule) (bool, error) {
	redisKey := fmt.Sprintf(keyBucket, key)
	var allowed bool

	txf := func(tx *redis.Tx) error {
		bucket, err := loadBucket(ctx, tx, redisKey)
		if err != nil {
			return err
		}

		bucket = prune(bucket, now.Add(-rule.Window))
		bucket = prune(bucket, now.Add(-housekeepingAge))

		allowed = len(bucket) < rule.MaxAttempts
		if allowed {
			bucket = append(bucket, now)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(bucket) == 0 {
				pipe.Del(ctx, redisKey)
				return nil
			}
			data, err := json.Marshal(bucket)
			if err != nil {
				return err
			}
			pipe.Set(ctx, redisKey, data, housekeepingAge)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, redisKey)
		if err == nil {
			return allowed, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return false, err
		}
	}

	return false, fmt.Errorf("bucket %s: too much contention", key)
}

func (s *RedisStore) Count(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	bucket, err := loadBucket(ctx, s.client, fmt.Sprintf(keyBucket, key))
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-window)
	n := 0
	for _, t := range bucket {
		if t.After(cutoff) {
			n++
		}
	}
	return n, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadBucket(ctx context.Context, c getter, key string) ([]time.Time, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var bucket []time.Time
	if err := json.Unmarshal(raw, &bucket); err != nil {
		return nil, fmt.Errorf("decode bucket %s: %w", key, err)
	}
	return bucket, nil
}
