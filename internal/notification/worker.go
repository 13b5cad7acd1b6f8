package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"fleet-tracking-backend/internal/logger"
	"fleet-tracking-backend/internal/model"
	"fleet-tracking-backend/internal/reconcile"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers sending drive status notifications.
type WorkerPool struct {
	size    int
	jobs    chan reconcile.StatusChange
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     zerolog.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan reconcile.StatusChange, size*16),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     logger.WithComponent("notification"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug().Int("worker", id).Msg("worker started")
	for {
		select {
		case change := <-wp.jobs:
			wp.log.Debug().Int("worker", id).Str("device_id", change.DeviceID.String()).Msg("processing status change")
			wp.sendNotificationsForDevice(ctx, change)
		case <-ctx.Done():
			wp.log.Debug().Int("worker", id).Msg("worker shutting down")
			return
		}
	}
}

// Notify queues a status change. It never blocks: when the queue is full
// the change is dropped.
func (wp *WorkerPool) Notify(_ context.Context, change reconcile.StatusChange) {
	select {
	case wp.jobs <- change:
	default:
		wp.log.Warn().Str("device_id", change.DeviceID.String()).Msg("notification queue full, dropping status change")
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan reconcile.StatusChange {
	return wp.jobs
}

// Message renders the notification text for a status change.
func Message(change reconcile.StatusChange) string {
	label := change.DisplayName
	if label == "" {
		label = change.DeviceID.String()
	}
	status := change.To
	if status == "" {
		status = string(model.DriveStatusOff)
	}
	return fmt.Sprintf("%s is now %s", label, status)
}

func (wp *WorkerPool) sendNotificationsForDevice(ctx context.Context, change reconcile.StatusChange) {
	deviceID := change.DeviceID.String()

	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_devices sd ON sd.endpoint = push_subscriptions.endpoint").
		Where("sd.device_id = ?", deviceID).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.Error().Err(err).Str("device_id", deviceID).Msg("failed to fetch subscriptions")
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	wp.log.Info().Int("count", len(subscriptions)).Str("device_id", deviceID).Msg("sending notifications")

	payload := []byte(Message(change))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.log.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired, deleting")
		err := wp.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("endpoint = ?", sub.Endpoint).Delete(&model.SubscriptionDevice{}).Error; err != nil {
				return err
			}
			return tx.Delete(&sub).Error
		})
		if err != nil {
			wp.log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
	}
}
