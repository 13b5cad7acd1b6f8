package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleet-tracking-backend/internal/logger"
)

// Manager keeps the open sessions. There is no coordination between sessions
// beyond the shared Refresher.
type Manager struct {
	ctx         context.Context
	stopReaper  context.CancelFunc
	refresher   Refresher
	interval    time.Duration
	idleTimeout time.Duration
	log         zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIdleTimeout closes sessions nobody has used for d. Zero keeps sessions
// until they are closed.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.idleTimeout = d
	}
}

// NewManager creates a manager whose sessions live at most as long as ctx.
func NewManager(ctx context.Context, r Refresher, interval time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		ctx:       ctx,
		refresher: r,
		interval:  interval,
		log:       logger.WithComponent("sessions"),
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}

	reaperCtx, cancel := context.WithCancel(ctx)
	m.stopReaper = cancel
	if m.idleTimeout > 0 {
		go m.reap(reaperCtx)
	}
	return m
}

// Open validates opts, registers a session and starts polling for it.
func (m *Manager) Open(opts Options) (*Session, error) {
	switch opts.Kind {
	case KindDetail:
		if opts.DeviceID == "" {
			return nil, ErrMissingDeviceID
		}
	case KindMap:
		opts.DeviceID = ""
	default:
		return nil, ErrUnknownKind
	}

	s := newSession(uuid.NewString(), opts, m.refresher, m.interval)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	s.start(m.ctx)
	m.log.Info().Str("session", s.ID).Str("kind", string(s.Kind)).Str("device_id", s.DeviceID).Msg("session opened")
	return s, nil
}

// Get returns an open session. Every lookup counts as client activity.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.Touch()
	return s, nil
}

// Close stops polling for the session and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.stop()
	m.log.Info().Str("session", id).Msg("session closed")
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll stops every session and the idle reaper, used on shutdown.
func (m *Manager) CloseAll() {
	m.stopReaper()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.stop()
	}
}

func (m *Manager) reap(ctx context.Context) {
	ticker := time.NewTicker(max(m.idleTimeout/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.closeIdle(now)
		}
	}
}

// closeIdle closes sessions last used before now minus the idle timeout.
func (m *Manager) closeIdle(now time.Time) {
	cutoff := now.Add(-m.idleTimeout)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.stop()
		m.log.Info().Str("session", s.ID).Time("last_seen", s.LastSeen()).Msg("idle session closed")
	}
}
