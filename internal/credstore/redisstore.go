package credstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "bridgectl:credentials"

const redisOpTimeout = 5 * time.Second

// RedisStore keeps the blob set in one Redis hash so multiple bridge hosts
// can share a paired identity. Save replaces the hash inside a transaction
// pipeline; readers never observe a half-written set.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(cfg Config) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("credstore: redis connection failed: %w", err)
	}
	key := strings.TrimSpace(cfg.RedisKey)
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{client: rdb, key: key}, nil
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Load() (Credentials, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("credstore: redis hgetall: %w", err)
	}
	creds := make(Credentials, len(fields))
	for k, v := range fields {
		creds[k] = []byte(v)
	}
	return creds, nil
}

func (s *RedisStore) Save(creds Credentials) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(creds) > 0 {
		fields := make(map[string]any, len(creds))
		for k, v := range creds {
			fields[k] = v
		}
		pipe.HSet(ctx, s.key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("credstore: redis save: %w", err)
	}
	return nil
}

func (s *RedisStore) Invalidate() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("credstore: redis invalidate: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
