package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// all keys written by this process live under this prefix
const redisPrefix = "screener/"

// Redis is the primary tier. TTLs are native Redis expiries.
type Redis struct {
	rdb *redis.Client
}

var _ Primary = (*Redis)(nil)

func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("could not configure redis: %w", err)
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.rdb.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, redisPrefix+key, value, ttl).Err()
}

func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.rdb.TTL(ctx, redisPrefix+key).Result()
	if err != nil {
		return 0, err
	}
	// -2 is a missing key, -1 a key without expiry
	switch ttl {
	case -2:
		return 0, ErrNotFound
	case -1:
		return NoExpiry, nil
	}
	return ttl, nil
}

// Markers returns a marker store sharing this client, so locks are visible
// to every process using the same Redis.
func (r *Redis) Markers() *RedisMarkers {
	return &RedisMarkers{rdb: r.rdb}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

type RedisMarkers struct {
	rdb *redis.Client
}

var _ Markers = (*RedisMarkers)(nil)

func markerKey(key string) string {
	return redisPrefix + "marker/" + key
}

func (m *RedisMarkers) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return m.rdb.SetNX(ctx, markerKey(key), value, ttl).Result()
}

func (m *RedisMarkers) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.rdb.Set(ctx, markerKey(key), value, ttl).Err()
}

func (m *RedisMarkers) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := m.rdb.Get(ctx, markerKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

func (m *RedisMarkers) Exists(ctx context.Context, key string) (bool, error) {
	n, err := m.rdb.Exists(ctx, markerKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *RedisMarkers) Del(ctx context.Context, key string) error {
	return m.rdb.Del(ctx, markerKey(key)).Err()
}
