package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fleet-tracking-backend/internal/logger"
	"fleet-tracking-backend/internal/model"
)

// Kind is the screen a session serves.
type Kind string

const (
	KindDetail Kind = "detail"
	KindMap    Kind = "map"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEditUnsupported = errors.New("session does not support edits")
	ErrNotEditing      = errors.New("no edit in progress")
	ErrUnknownKind     = errors.New("unknown session kind")
	ErrMissingDeviceID = errors.New("detail session requires a device_id")
)

// Refresher runs one poll cycle against the shared device list.
type Refresher interface {
	Refresh(ctx context.Context, persist bool) ([]model.Device, error)
	SaveEdit(ctx context.Context, id string, edits model.Edits) (model.Device, error)
}

// Options describes the screen a session is opened for.
type Options struct {
	Kind      Kind     `json:"kind"`
	DeviceID  string   `json:"device_id,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Session polls on behalf of one open screen. It polls once when started and
// then every interval until closed. A cycle is never started while the
// previous one is running, the timer is re-armed only after it returns.
type Session struct {
	ID       string
	Kind     Kind
	DeviceID string
	Opened   time.Time

	refresher Refresher
	interval  time.Duration
	region    Region
	log       zerolog.Logger

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	lastSeen atomic.Int64 // unix nanoseconds

	mu        sync.RWMutex
	devices   []model.Device
	updatedAt time.Time
	lastErr   error
	editing   bool
	cycles    int
}

func newSession(id string, opts Options, r Refresher, interval time.Duration) *Session {
	s := &Session{
		ID:        id,
		Kind:      opts.Kind,
		DeviceID:  opts.DeviceID,
		Opened:    time.Now().UTC(),
		refresher: r,
		interval:  interval,
		region:    regionFor(opts.Latitude, opts.Longitude),
		log:       logger.WithComponent("session").With().Str("session", id).Str("kind", string(opts.Kind)).Logger(),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	s.Touch()
	return s
}

// Touch records client activity on the session.
func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns when the client last used the session.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// start launches the polling loop bound to ctx.
func (s *Session) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// stop cancels the loop, aborting an in-flight cycle, and waits for it to exit.
func (s *Session) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	s.log.Info().Dur("interval", s.interval).Msg("session polling started")

	s.pollOnce(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("session polling stopped")
			return
		case <-s.wake:
			// Edit form closed: poll right away and restart the interval.
			s.pollOnce(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.interval)
		case <-timer.C:
			if !s.suspended() {
				s.pollOnce(ctx)
			}
			timer.Reset(s.interval)
		}
	}
}

// persists reports whether cycles of this session write the merged list back.
// Only the detail screen writes, the map screen reads.
func (s *Session) persists() bool {
	return s.Kind == KindDetail
}

func (s *Session) suspended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.editing
}

// pollOnce runs one cycle. Failures are logged and never stop the loop.
func (s *Session) pollOnce(ctx context.Context) {
	if s.suspended() {
		return
	}

	devices, err := s.refresher.Refresh(ctx, s.persists())
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.lastErr = err
	if err != nil {
		s.log.Warn().Err(err).Msg("poll cycle failed")
	}
	// A failed save still yields the merged list.
	if devices != nil {
		s.devices = devices
		s.updatedAt = time.Now().UTC()
	}
}

// BeginEdit opens the edit form, which suspends polling of a detail session.
func (s *Session) BeginEdit() (model.Device, error) {
	if s.Kind != KindDetail {
		return model.Device{}, ErrEditUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = true
	d, _ := s.deviceLocked()
	return d, nil
}

// SaveEdit persists the edits for the session's device and resumes polling.
func (s *Session) SaveEdit(ctx context.Context, edits model.Edits) (model.Device, error) {
	if s.Kind != KindDetail {
		return model.Device{}, ErrEditUnsupported
	}
	if !s.suspended() {
		return model.Device{}, ErrNotEditing
	}

	updated, err := s.refresher.SaveEdit(ctx, s.DeviceID, edits)
	if err != nil {
		// The form stays open so the user can retry or cancel.
		return model.Device{}, err
	}

	s.mu.Lock()
	for i, d := range s.devices {
		if d.DeviceID == updated.DeviceID {
			s.devices[i] = updated
		}
	}
	s.editing = false
	s.mu.Unlock()

	s.resume()
	return updated, nil
}

// CancelEdit discards the form and resumes polling.
func (s *Session) CancelEdit() error {
	if s.Kind != KindDetail {
		return ErrEditUnsupported
	}
	s.mu.Lock()
	if !s.editing {
		s.mu.Unlock()
		return ErrNotEditing
	}
	s.editing = false
	s.mu.Unlock()

	s.resume()
	return nil
}

func (s *Session) resume() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Editing reports whether the edit form is open.
func (s *Session) Editing() bool {
	return s.suspended()
}

// Cycles returns how many poll cycles have completed.
func (s *Session) Cycles() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycles
}

// Devices returns the list seen by the last successful cycle.
func (s *Session) Devices() []model.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Device, len(s.devices))
	copy(out, s.devices)
	return out
}

func (s *Session) deviceLocked() (model.Device, bool) {
	for _, d := range s.devices {
		if d.DeviceID.String() == s.DeviceID {
			return d, true
		}
	}
	return model.Device{}, false
}
