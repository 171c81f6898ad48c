package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyRepository satisfies middleware.IdempotencyStore with Redis.
type IdempotencyRepository struct {
	client *redis.Client
}

func NewIdempotencyRepository(redisURL string) (*IdempotencyRepository, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return &IdempotencyRepository{client: redis.NewClient(opts)}, nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (r *IdempotencyRepository) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *IdempotencyRepository) Close() error {
	return r.client.Close()
}
