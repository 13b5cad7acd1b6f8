// Package devicecache owns the locally persisted device list. Every screen
// session refreshes through a single Hub, which serialises the fetch, merge and
// persist steps so concurrent sessions cannot overwrite each other's writes.
package devicecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fleet-tracking-backend/internal/logger"
	"fleet-tracking-backend/internal/model"
	"fleet-tracking-backend/internal/reconcile"
	"fleet-tracking-backend/internal/store"
)

// ErrDeviceNotFound is returned for ids absent from the current device list.
var ErrDeviceNotFound = errors.New("device not found")

// Fetcher returns the current device listing from the fleet API.
type Fetcher interface {
	FetchDevices(ctx context.Context) ([]model.Device, error)
}

// Notifier receives drive status transitions.
type Notifier interface {
	Notify(ctx context.Context, change reconcile.StatusChange)
}

// Options configures a Hub.
type Options struct {
	Key          string
	FetchTimeout time.Duration
	Notifier     Notifier
}

// Hub is the single owner of the device list and its storage key.
type Hub struct {
	fetcher      Fetcher
	store        store.Store
	key          string
	fetchTimeout time.Duration
	notifier     Notifier
	log          zerolog.Logger
	now          func() time.Time

	mu        sync.Mutex
	devices   []model.Device
	refreshed time.Time
}

// NewHub creates a hub reading from fetcher and persisting to s.
func NewHub(fetcher Fetcher, s store.Store, opts Options) *Hub {
	return &Hub{
		fetcher:      fetcher,
		store:        s,
		key:          opts.Key,
		fetchTimeout: opts.FetchTimeout,
		notifier:     opts.Notifier,
		log:          logger.WithComponent("devicecache"),
		now:          time.Now,
	}
}

// Refresh runs one poll cycle: fetch, load overrides, reconcile and, when
// persist is set, write the merged list back under the key.
//
// A failed fetch leaves the snapshot and storage untouched. A failed load
// is logged and the cycle continues without overrides, and nothing is written
// that cycle. A failed save is returned after the snapshot has been updated.
func (h *Hub) Refresh(ctx context.Context, persist bool) ([]model.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fetchCtx := ctx
	if h.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, h.fetchTimeout)
		defer cancel()
	}

	server, err := h.fetcher.FetchDevices(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("fetch devices: %w", err)
	}

	stored, err := h.store.Load(ctx, h.key)
	if err != nil {
		h.log.Error().Err(err).Str("key", h.key).Msg("failed to read stored devices, merging without overrides")
		stored = nil
		// Writing this list back would replace the stored overrides.
		persist = false
	}

	merged := reconcile.Reconcile(server, reconcile.Overrides(stored))
	h.publish(ctx, merged)

	if !persist {
		return clone(merged), nil
	}
	if err := h.store.Save(ctx, h.key, merged); err != nil {
		return clone(merged), fmt.Errorf("persist devices: %w", err)
	}
	return clone(merged), nil
}

// publish replaces the snapshot and reports status transitions. Callers hold mu.
func (h *Hub) publish(ctx context.Context, merged []model.Device) {
	changes := reconcile.StatusChanges(h.devices, merged)
	h.devices = merged
	h.refreshed = h.now()

	if h.notifier == nil {
		return
	}
	for _, change := range changes {
		h.notifier.Notify(ctx, change)
	}
}

// Snapshot returns a copy of the last merged list.
func (h *Hub) Snapshot() []model.Device {
	h.mu.Lock()
	defer h.mu.Unlock()
	return clone(h.devices)
}

// RefreshedAt returns when the snapshot was last replaced.
func (h *Hub) RefreshedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refreshed
}

// Device looks up a device of the snapshot by its unquoted id.
func (h *Hub) Device(id string) (model.Device, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return lookup(h.devices, id)
}

// SaveEdit applies edits to the device with the given id, splices it into the
// list and persists the whole list. Before the first successful refresh the
// stored list is used as the base.
func (h *Hub) SaveEdit(ctx context.Context, id string, edits model.Edits) (model.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	base := h.devices
	if base == nil {
		stored, err := h.store.Load(ctx, h.key)
		if err != nil {
			return model.Device{}, fmt.Errorf("load devices: %w", err)
		}
		base = stored
	}

	current, ok := lookup(base, id)
	if !ok {
		return model.Device{}, ErrDeviceNotFound
	}

	updated := reconcile.ApplyEdit(current, edits)
	list := reconcile.Splice(base, updated)
	if err := h.store.Save(ctx, h.key, list); err != nil {
		return model.Device{}, fmt.Errorf("persist devices: %w", err)
	}

	h.devices = list
	h.log.Info().Str("device_id", id).Msg("saved device edits")
	return updated, nil
}

func lookup(devices []model.Device, id string) (model.Device, bool) {
	for _, d := range devices {
		if d.DeviceID.String() == id {
			return d, true
		}
	}
	return model.Device{}, false
}

func clone(devices []model.Device) []model.Device {
	if devices == nil {
		return nil
	}
	out := make([]model.Device, len(devices))
	copy(out, devices)
	return out
}
