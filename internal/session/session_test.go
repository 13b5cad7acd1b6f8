package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-tracking-backend/internal/model"
)

const testInterval = 20 * time.Millisecond

// mockRefresher is a mock implementation of the Refresher interface.
type mockRefresher struct {
	mu         sync.Mutex
	devices    []model.Device
	err        error
	calls      atomic.Int32
	persisted  atomic.Int32
	inFlight   atomic.Int32
	overlapped atomic.Bool
	delay      time.Duration
	saveErr    error
	saved      []model.Edits
}

func (m *mockRefresher) Refresh(ctx context.Context, persist bool) ([]model.Device, error) {
	if m.inFlight.Add(1) > 1 {
		m.overlapped.Store(true)
	}
	defer m.inFlight.Add(-1)

	m.calls.Add(1)
	if persist {
		m.persisted.Add(1)
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]model.Device, len(m.devices))
	copy(out, m.devices)
	return out, nil
}

func (m *mockRefresher) SaveEdit(ctx context.Context, id string, edits model.Edits) (model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return model.Device{}, m.saveErr
	}
	m.saved = append(m.saved, edits)
	for i, d := range m.devices {
		if d.DeviceID.String() == id {
			if edits.DisplayName != nil {
				d.DisplayName = *edits.DisplayName
			}
			m.devices[i] = d
			return d, nil
		}
	}
	return model.Device{}, errors.New("device not found")
}

func (m *mockRefresher) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func ptr[T any](v T) *T { return &v }

func located(id int64, name, status string, lat, lng float64) model.Device {
	return model.Device{
		DeviceID:    model.NumericDeviceID(id),
		DisplayName: name,
		LatestDevicePoint: &model.DevicePoint{
			Lat: &lat, Lng: &lng,
			DtServer:    "2024-05-01T10:20:30Z",
			DeviceState: &model.DeviceState{DriveStatus: status},
		},
	}
}

func newTestManager(t *testing.T, r Refresher) *Manager {
	m := NewManager(context.Background(), r, testInterval)
	t.Cleanup(m.CloseAll)
	return m
}

func TestManager_OpenValidates(t *testing.T) {
	m := newTestManager(t, &mockRefresher{})

	_, err := m.Open(Options{Kind: KindDetail})
	assert.ErrorIs(t, err, ErrMissingDeviceID)

	_, err = m.Open(Options{Kind: "list"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	s, err := m.Open(Options{Kind: KindMap, DeviceID: "ignored"})
	require.NoError(t, err)
	assert.Empty(t, s.DeviceID)
	assert.Equal(t, 1, m.Len())
}

func TestSession_PollsOnOpenAndOnInterval(t *testing.T) {
	r := &mockRefresher{devices: []model.Device{located(1, "Truck", "idle", 1, 2)}}
	m := newTestManager(t, r)

	s, err := m.Open(Options{Kind: KindDetail, DeviceID: "1"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return s.Cycles() >= 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return s.Cycles() >= 3 }, time.Second, time.Millisecond)
	require.NoError(t, m.Close(s.ID))
	assert.Equal(t, r.calls.Load(), r.persisted.Load(), "detail sessions persist every cycle")
}

func TestSession_MapDoesNotPersist(t *testing.T) {
	r := &mockRefresher{devices: []model.Device{located(1, "Truck", "idle", 1, 2)}}
	m := newTestManager(t, r)

	s, err := m.Open(Options{Kind: KindMap})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return s.Cycles() >= 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), r.persisted.Load())
}

func TestSession_CloseStopsPolling(t *testing.T) {
	r := &mockRefresher{}
	m := newTestManager(t, r)

	s, err := m.Open(Options{Kind: KindMap})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return s.Cycles() >= 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Close(s.ID))
	calls := r.calls.Load()
	time.Sleep(5 * testInterval)
	assert.Equal(t, calls, r.calls.Load())

	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Close(s.ID), ErrSessionNotFound)
}

func TestSession_CloseAbortsInFlightCycle(t *testing.T) {
	r := &mockRefresher{delay: time.Hour}
	m := newTestManager(t, r)

	s, err := m.Open(Options{Kind: KindDetail, DeviceID: "1"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		m.Close(s.ID)
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close did not abort the in-flight cycle")
	}
	assert.Equal(t, 0, s.Cycles())
}

func TestSession_CyclesNeverOverlap(t *testing.T) {
	r := &mockRefresher{delay: 3 * testInterval}
	m := newTestManager(t, r)

	s, err := m.Open(Options{Kind: KindMap})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return s.Cycles() >= 3 }, 2*time.Second, time.Millisecond)
	assert.False(t, r.overlapped.Load())
}

func TestSession_ErrorsDoNotStopPolling(t *testing.T) {
	r := &mockRefresher{err: errors.New("network down")}
	m := newTestManager(t, r)

	s, err := m.Open(Options{Kind: KindDetail, DeviceID: "1"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return s.Cycles() >= 3 }, time.Second, time.Millisecond)

	view := s.View().(*DetailView)
	assert.False(t, view.Found)
	assert.Equal(t, "network down", view.LastError)

	r.mu.Lock()
	r.devices = []model.Device{located(1, "Truck", "idle", 1, 2)}
	r.mu.Unlock()
	r.setErr(nil)

	assert.Eventually(t, func() bool { return s.View().(*DetailView).Found }, time.Second, time.Millisecond)
	assert.Empty(t, s.View().(*DetailView).LastError)
}

func TestSession_EditSuspendsAndResumesPolling(t *testing.T) {
	r := &mockRefresher{devices: []model.Device{located(1, "Truck", "idle", 1, 2)}}
	m := newTestManager(t, r)

	s, err := m.Open(Options{Kind: KindDetail, DeviceID: "1"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return s.Cycles() >= 1 }, time.Second, time.Millisecond)

	current, err := s.BeginEdit()
	require.NoError(t, err)
	assert.Equal(t, "Truck", current.DisplayName)
	assert.True(t, s.Editing())

	// Let any cycle that was already running finish, then check nothing new starts.
	time.Sleep(2 * testInterval)
	calls := r.calls.Load()
	time.Sleep(5 * testInterval)
	assert.Equal(t, calls, r.calls.Load(), "no polling while the edit form is open")

	updated, err := s.SaveEdit(context.Background(), model.Edits{DisplayName: ptr("Truck A")})
	require.NoError(t, err)
	assert.Equal(t, "Truck A", updated.DisplayName)
	assert.False(t, s.Editing())

	assert.Eventually(t, func() bool { return r.calls.Load() > calls }, time.Second, time.Millisecond)
	view := s.View().(*DetailView)
	assert.Equal(t, "Truck A (idle)", view.Title)
}

func TestSession_CancelEdit(t *testing.T) {
	r := &mockRefresher{devices: []model.Device{located(1, "Truck", "idle", 1, 2)}}
	m := newTestManager(t, r)

	s, err := m.Open(Options{Kind: KindDetail, DeviceID: "1"})
	require.NoError(t, err)

	assert.ErrorIs(t, s.CancelEdit(), ErrNotEditing)
	_, err = s.SaveEdit(context.Background(), model.Edits{})
	assert.ErrorIs(t, err, ErrNotEditing)

	_, err = s.BeginEdit()
	require.NoError(t, err)
	require.NoError(t, s.CancelEdit())
	assert.False(t, s.Editing())

	r.mu.Lock()
	assert.Empty(t, r.saved, "cancel discards the edits")
	r.mu.Unlock()
}

func TestSession_SaveEditFailureKeepsFormOpen(t *testing.T) {
	r := &mockRefresher{devices: []model.Device{located(1, "Truck", "idle", 1, 2)}, saveErr: errors.New("disk full")}
	m := newTestManager(t, r)

	s, err := m.Open(Options{Kind: KindDetail, DeviceID: "1"})
	require.NoError(t, err)
	_, err = s.BeginEdit()
	require.NoError(t, err)

	_, err = s.SaveEdit(context.Background(), model.Edits{DisplayName: ptr("x")})
	assert.ErrorContains(t, err, "disk full")
	assert.True(t, s.Editing())
}

func TestSession_MapRejectsEdits(t *testing.T) {
	m := newTestManager(t, &mockRefresher{})
	s, err := m.Open(Options{Kind: KindMap})
	require.NoError(t, err)

	_, err = s.BeginEdit()
	assert.ErrorIs(t, err, ErrEditUnsupported)
	_, err = s.SaveEdit(context.Background(), model.Edits{})
	assert.ErrorIs(t, err, ErrEditUnsupported)
	assert.ErrorIs(t, s.CancelEdit(), ErrEditUnsupported)
}

func TestManager_ClosesIdleSessions(t *testing.T) {
	r := &mockRefresher{}
	m := NewManager(context.Background(), r, testInterval, WithIdleTimeout(4*testInterval))
	t.Cleanup(m.CloseAll)

	active, err := m.Open(Options{Kind: KindMap})
	require.NoError(t, err)
	abandoned, err := m.Open(Options{Kind: KindDetail, DeviceID: "1"})
	require.NoError(t, err)

	// The client keeps viewing one session and forgets the other.
	deadline := time.Now().Add(12 * testInterval)
	for time.Now().Before(deadline) {
		_, err := m.Get(active.ID)
		require.NoError(t, err)
		time.Sleep(testInterval / 2)
	}

	assert.Equal(t, 1, m.Len())
	_, err = m.Get(active.ID)
	assert.NoError(t, err)

	m.mu.Lock()
	_, stillOpen := m.sessions[abandoned.ID]
	m.mu.Unlock()
	assert.False(t, stillOpen)

	select {
	case <-abandoned.done:
	default:
		t.Fatal("idle session is still polling")
	}
}

func TestManager_CloseIdle(t *testing.T) {
	m := NewManager(context.Background(), &mockRefresher{}, time.Hour, WithIdleTimeout(time.Minute))
	t.Cleanup(m.CloseAll)

	s, err := m.Open(Options{Kind: KindMap})
	require.NoError(t, err)

	m.closeIdle(time.Now().Add(30 * time.Second))
	assert.Equal(t, 1, m.Len())

	m.closeIdle(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, m.Len())
	assert.ErrorIs(t, m.Close(s.ID), ErrSessionNotFound)
}

func TestManager_NoIdleTimeoutKeepsSessions(t *testing.T) {
	m := newTestManager(t, &mockRefresher{})
	_, err := m.Open(Options{Kind: KindMap})
	require.NoError(t, err)

	time.Sleep(5 * testInterval)
	assert.Equal(t, 1, m.Len())
}
