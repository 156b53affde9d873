package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/newsfeed/pkg/logger"
)

// errVersionMoved aborts a fill whose source data was read before an invalidation.
var errVersionMoved = errors.New("cache version moved")

// Store is a read-through JSON cache with versioned invalidation.
//
// Every cached key has a companion "<key>:ver" counter. Invalidate bumps the counter
// and deletes the value; Fill only writes when the counter still equals the version
// observed before the source was read. A reader that raced a mutation therefore drops
// its result instead of caching a set that would stay stale until TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns a Store. A nil client yields a Store that always misses.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Enabled reports whether a Redis client is attached.
func (s *Store) Enabled() bool { return s != nil && s.client != nil }

func versionKey(key string) string { return key + ":ver" }

// Version returns the current invalidation counter of key (0 when never invalidated).
func (s *Store) Version(ctx context.Context, key string) (int64, error) {
	v, err := s.client.Get(ctx, versionKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Get decodes the cached value into dst. It reports false on a miss.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// corrupt entry, treat as miss
		return false, nil
	}
	return true, nil
}

// Fill caches value under key if key's version still equals version.
func (s *Store) Fill(ctx context.Context, key string, version int64, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	vk := versionKey(key)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return errVersionMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}, vk)
	if errors.Is(err, errVersionMoved) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// Invalidate bumps the version of every key and deletes the cached values atomically.
func (s *Store) Invalidate(ctx context.Context, keys ...string) error {
	if !s.Enabled() || len(keys) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Incr(ctx, versionKey(k))
			pipe.Del(ctx, k)
		}
		return nil
	})
	return err
}

// GetOrLoad returns the cached value for key, calling load on a miss and filling the
// cache with the result. Redis failures degrade to calling load directly. The boolean
// reports a cache hit.
func GetOrLoad[T any](ctx context.Context, s *Store, key string, load func(context.Context) (T, error)) (T, bool, error) {
	if !s.Enabled() {
		v, err := load(ctx)
		return v, false, err
	}

	var cached T
	hit, err := s.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn("cache get failed, falling back to source", zap.String("key", key), zap.Error(err))
		v, err := load(ctx)
		return v, false, err
	}
	if hit {
		return cached, true, nil
	}

	version, err := s.Version(ctx, key)
	if err != nil {
		logger.Warn("cache version read failed, skipping fill", zap.String("key", key), zap.Error(err))
		v, err := load(ctx)
		return v, false, err
	}

	v, err := load(ctx)
	if err != nil {
		return v, false, err
	}
	if err := s.Fill(ctx, key, version, v); err != nil {
		logger.Debug("cache fill failed", zap.String("key", key), zap.Error(err))
	}
	return v, false, nil
}
