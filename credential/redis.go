package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists the token under "<prefix>:<key>".
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	key    string
	ttl    time.Duration
}

// NewRedisStore returns a RedisStore. ttl 0 stores the token without expiry.
func NewRedisStore(client redis.UniversalClient, prefix, key string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "gc"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		key:    key,
		ttl:    ttl,
	}
}

func (s *RedisStore) redisKey() string {
	return s.prefix + ":" + s.key
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	val, err := s.redis.Get(ctx, s.redisKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if val == "" {
		return "", ErrNotFound
	}
	return val, nil
}

func (s *RedisStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := s.redis.Set(ctx, s.redisKey(), token, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.redisKey()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
