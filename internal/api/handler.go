package api

import (
	"context"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"fleet-tracking-backend/internal/logger"
	"fleet-tracking-backend/internal/model"
	"fleet-tracking-backend/internal/session"
)

// DeviceCache is the shared device list the handlers read and edit.
type DeviceCache interface {
	Refresh(ctx context.Context, persist bool) ([]model.Device, error)
	Snapshot() []model.Device
	RefreshedAt() time.Time
	Device(id string) (model.Device, bool)
	SaveEdit(ctx context.Context, id string, edits model.Edits) (model.Device, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	devices  DeviceCache
	sessions *session.Manager
	db       *gorm.DB
	webpush  *webpush.Options
	log      zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(devices DeviceCache, sessions *session.Manager, db *gorm.DB, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		devices:  devices,
		sessions: sessions,
		db:       db,
		webpush:  webpushOptions,
		log:      logger.WithComponent("api"),
	}
}
