package model

import (
	"time"

	"gorm.io/datatypes"
)

// KVEntry is one persisted value of the local key-value store.
type KVEntry struct {
	Key       string         `gorm:"primaryKey;size:128"`
	Value     datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}
