package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fleet-tracking-backend/internal/model"
)

// Store persists device lists under a key.
type Store interface {
	// Load returns the list saved under key, or nil when nothing was saved.
	Load(ctx context.Context, key string) ([]model.Device, error)
	// Save replaces the list saved under key.
	Save(ctx context.Context, key string, devices []model.Device) error
}

// decode parses a persisted value. A JSON null reads as an absent list.
func decode(key string, raw []byte) ([]model.Device, error) {
	var devices []model.Device
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, fmt.Errorf("failed to decode value of %q: %w", key, err)
	}
	return devices, nil
}

func encode(key string, devices []model.Device) ([]byte, error) {
	if devices == nil {
		devices = []model.Device{}
	}
	raw, err := json.Marshal(devices)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value of %q: %w", key, err)
	}
	return raw, nil
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store on the kv_entries table.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Load(ctx context.Context, key string) ([]model.Device, error) {
	var entry model.KVEntry
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return decode(key, entry.Value)
}

func (s *gormStore) Save(ctx context.Context, key string, devices []model.Device) error {
	raw, err := encode(key, devices)
	if err != nil {
		return err
	}

	entry := model.KVEntry{Key: key, Value: raw, UpdatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}
