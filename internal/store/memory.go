package store

import (
	"context"

	"github.com/patrickmn/go-cache"

	"fleet-tracking-backend/internal/model"
)

// memoryStore keeps encoded values in process memory. Values are stored
// encoded so callers never share slices with the store.
type memoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore creates an in-memory store whose entries never expire.
func NewMemoryStore() Store {
	return &memoryStore{cache: cache.New(cache.NoExpiration, 0)}
}

func (s *memoryStore) Load(_ context.Context, key string) ([]model.Device, error) {
	v, found := s.cache.Get(key)
	if !found {
		return nil, nil
	}
	return decode(key, v.([]byte))
}

func (s *memoryStore) Save(_ context.Context, key string, devices []model.Device) error {
	raw, err := encode(key, devices)
	if err != nil {
		return err
	}
	s.cache.Set(key, raw, cache.NoExpiration)
	return nil
}
