// Package aggregate is the typed adapter over the fast counter store. It
// translates orchestrator requests into atomic Redis increments and holds no
// business logic of its own. Counters here are a derived view; the document
// store stays authoritative.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrUnavailable = errors.New("aggregate store unavailable")

// RedisStore implements the counter store on Redis. Every write maps to a
// single atomic increment primitive, so concurrent callers on the same key
// never need external locking.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) impressionsKey(hash string) string { return s.prefix + hash + ":impressions" }
func (s *RedisStore) commentCountKey(hash string) string { return s.prefix + hash + ":comments" }
func (s *RedisStore) flagCountKey(hash string) string    { return s.prefix + hash + ":flags" }
func (s *RedisStore) flagDistKey(hash string) string     { return s.prefix + hash + ":flagdist" }
func (s *RedisStore) flagWeightKey(hash string) string   { return s.prefix + hash + ":flagweight" }

func (s *RedisStore) Impressions(ctx context.Context, hash string) (uint64, error) {
	return s.getUint(ctx, s.impressionsKey(hash))
}

// HasImpressions reports whether any impression has ever been recorded for
// the hash. The orchestrator uses this as the "is this page indexed yet"
// probe on the comment path.
func (s *RedisStore) HasImpressions(ctx context.Context, hash string) (bool, error) {
	n, err := s.client.Exists(ctx, s.impressionsKey(hash)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: check impressions: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

func (s *RedisStore) CommentCount(ctx context.Context, hash string) (uint64, error) {
	return s.getUint(ctx, s.commentCountKey(hash))
}

func (s *RedisStore) FlagCount(ctx context.Context, hash string) (uint64, error) {
	return s.getUint(ctx, s.flagCountKey(hash))
}

func (s *RedisStore) FlagDistribution(ctx context.Context, hash string) (map[string]uint64, error) {
	raw, err := s.client.HGetAll(ctx, s.flagDistKey(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read flag distribution: %v", ErrUnavailable, err)
	}
	dist := make(map[string]uint64, len(raw))
	for reason, value := range raw {
		parsed, parseErr := strconv.ParseUint(value, 10, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("parse flag distribution %q: %w", reason, parseErr)
		}
		dist[reason] = parsed
	}
	return dist, nil
}

func (s *RedisStore) FlagDistributionFor(ctx context.Context, hash, reason string) (uint64, error) {
	value, err := s.client.HGet(ctx, s.flagDistKey(hash), reason).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read flag distribution for %q: %v", ErrUnavailable, reason, err)
	}
	parsed, parseErr := strconv.ParseUint(value, 10, 64)
	if parseErr != nil {
		return 0, fmt.Errorf("parse flag distribution for %q: %w", reason, parseErr)
	}
	return parsed, nil
}

func (s *RedisStore) CumulativeWeight(ctx context.Context, hash string) (float64, error) {
	value, err := s.client.Get(ctx, s.flagWeightKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read cumulative weight: %v", ErrUnavailable, err)
	}
	parsed, parseErr := strconv.ParseFloat(value, 64)
	if parseErr != nil {
		return 0, fmt.Errorf("parse cumulative weight: %w", parseErr)
	}
	return parsed, nil
}

func (s *RedisStore) IncrImpressions(ctx context.Context, hash string, delta int64) error {
	return s.incr(ctx, s.impressionsKey(hash), delta)
}

func (s *RedisStore) IncrCommentCount(ctx context.Context, hash string, delta int64) error {
	return s.incr(ctx, s.commentCountKey(hash), delta)
}

func (s *RedisStore) IncrFlagCount(ctx context.Context, hash string, delta int64) error {
	return s.incr(ctx, s.flagCountKey(hash), delta)
}

func (s *RedisStore) IncrFlagDistribution(ctx context.Context, hash, reason string, delta int64) error {
	if err := s.client.HIncrBy(ctx, s.flagDistKey(hash), reason, delta).Err(); err != nil {
		return fmt.Errorf("%w: increment flag distribution %q: %v", ErrUnavailable, reason, err)
	}
	return nil
}

func (s *RedisStore) IncrCumulativeWeight(ctx context.Context, hash string, delta float64) error {
	if err := s.client.IncrByFloat(ctx, s.flagWeightKey(hash), delta).Err(); err != nil {
		return fmt.Errorf("%w: increment cumulative weight: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) getUint(ctx context.Context, key string) (uint64, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %v", ErrUnavailable, key, err)
	}
	parsed, parseErr := strconv.ParseUint(value, 10, 64)
	if parseErr != nil {
		return 0, fmt.Errorf("parse %s: %w", key, parseErr)
	}
	return parsed, nil
}

func (s *RedisStore) incr(ctx context.Context, key string, delta int64) error {
	if err := s.client.IncrBy(ctx, key, delta).Err(); err != nil {
		return fmt.Errorf("%w: increment %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
