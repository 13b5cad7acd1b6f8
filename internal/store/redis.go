package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"fleet-tracking-backend/internal/model"
)

// redisStore keeps each key as a plain string value, without expiry.
type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store on top of the given client.
func NewRedisStore(client *redis.Client, prefix string) Store {
	return &redisStore{client: client, prefix: prefix}
}

func (s *redisStore) Load(ctx context.Context, key string) ([]model.Device, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return decode(key, raw)
}

func (s *redisStore) Save(ctx context.Context, key string, devices []model.Device) error {
	raw, err := encode(key, devices)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}
