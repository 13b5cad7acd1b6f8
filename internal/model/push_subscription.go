package model

import "time"

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Devices []SubscriptionDevice `gorm:"foreignKey:Endpoint;references:Endpoint;constraint:OnDelete:CASCADE"`
}

// SubscriptionDevice maps a subscription to a device it wants status alerts for.
// DeviceID is the unquoted form of the upstream id (DeviceID.String()).
type SubscriptionDevice struct {
	Endpoint string `gorm:"primaryKey"`
	DeviceID string `gorm:"primaryKey;size:128;index"`
}
