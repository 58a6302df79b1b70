package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "content:"

// RedisProvider invalidates cached content stored in Redis under
// "content:<accountReference>".
type RedisProvider struct {
	client *redis.Client
}

// NewRedisProvider connects to Redis and verifies the connection.
func NewRedisProvider(redisURL string) (*RedisProvider, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisProvider{client: client}, nil
}

// PurgeContentByKey deletes the cached content entry for the given key.
func (p *RedisProvider) PurgeContentByKey(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis purge failed: %w", err)
	}
	return nil
}

func (p *RedisProvider) Close() error {
	return p.client.Close()
}
