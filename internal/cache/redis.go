package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend is the durable Backend.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend parses a redis:// URL and builds a client. It does not dial;
// connectivity is established lazily and checked through Ping.
func NewRedisBackend(url string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	return NewRedisBackendFromClient(redis.NewClient(opts)), nil
}

func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Name() string {
	return "redis"
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisBackend) Clear(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}

func (r *RedisBackend) Len(ctx context.Context) (int, error) {
	n, err := r.client.DBSize(ctx).Result()
	return int(n), err
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Info returns the "field:value" lines of the server's INFO output.
func (r *RedisBackend) Info(ctx context.Context) ([]string, error) {
	raw, err := r.client.Info(ctx).Result()
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(raw, "\r\n") {
		if strings.Contains(line, ":") {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
