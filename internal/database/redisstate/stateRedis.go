package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

type stateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStateRepository stores wizard blobs as plain redis strings. Every write
// refreshes the TTL, so abandoned sessions disappear on their own.
func NewStateRepository(client *redis.Client, ttl time.Duration) database.StateRepository {
	return &stateRepository{client: client, ttl: ttl}
}

func (r *stateRepository) Get(ctx context.Context, key string) ([]byte, error) {
	blob, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, entity.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return blob, nil
}

func (r *stateRepository) Set(ctx context.Context, key string, blob []byte) error {
	if err := r.client.Set(ctx, key, blob, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *stateRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// DeleteStale is a no-op: redis expires keys by TTL.
func (r *stateRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}
