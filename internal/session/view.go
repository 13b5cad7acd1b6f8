package session

import (
	"strconv"
	"time"

	"fleet-tracking-backend/internal/model"
	"fleet-tracking-backend/internal/parse"
)

// Default map region, used when the client does not pass a position.
const (
	DefaultLatitude  = 37.7749
	DefaultLongitude = -122.4194
	DefaultDelta     = 40
)

// Marker colors by drive status.
const (
	ColorSuccess = "success"
	ColorPending = "pending"
	ColorGrey    = "grey"
)

const notAvailable = "N/A"

// Region is the visible map area.
type Region struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LatitudeDelta  float64 `json:"latitudeDelta"`
	LongitudeDelta float64 `json:"longitudeDelta"`
}

// regionFor centers on the given position. Missing or zero components fall
// back to the default center.
func regionFor(lat, lng *float64) Region {
	r := Region{
		Latitude:       DefaultLatitude,
		Longitude:      DefaultLongitude,
		LatitudeDelta:  DefaultDelta,
		LongitudeDelta: DefaultDelta,
	}
	if lat != nil && *lat != 0 {
		r.Latitude = *lat
	}
	if lng != nil && *lng != 0 {
		r.Longitude = *lng
	}
	return r
}

// Marker is one device pin on the map.
type Marker struct {
	Index       int               `json:"index"`
	DeviceID    model.DeviceID    `json:"device_id"`
	DisplayName string            `json:"display_name"`
	Latitude    float64           `json:"latitude"`
	Longitude   float64           `json:"longitude"`
	Status      model.DriveStatus `json:"status"`
	Color       string            `json:"color"`
}

// MarkerColor maps a drive status to its marker color.
func MarkerColor(status model.DriveStatus) string {
	switch status {
	case model.DriveStatusDriving:
		return ColorSuccess
	case model.DriveStatusIdle:
		return ColorPending
	default:
		return ColorGrey
	}
}

// Markers builds pins for every device with a position. Index is the
// device's position in the full list.
func Markers(devices []model.Device) []Marker {
	markers := make([]Marker, 0, len(devices))
	for i, d := range devices {
		lat, lng, ok := d.Coordinates()
		if !ok {
			continue
		}
		status := parse.DriveStatus(d.DriveStatus())
		markers = append(markers, Marker{
			Index:       i,
			DeviceID:    d.DeviceID,
			DisplayName: d.DisplayName,
			Latitude:    lat,
			Longitude:   lng,
			Status:      status,
			Color:       MarkerColor(status),
		})
	}
	return markers
}

// MapView is what the map screen renders.
type MapView struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Region    Region    `json:"region"`
	Markers   []Marker  `json:"markers"`
	UpdatedAt time.Time `json:"updated_at"`
	LastError string    `json:"last_error,omitempty"`
}

// DetailView is what the device detail screen renders.
type DetailView struct {
	ID          string        `json:"id"`
	Kind        Kind          `json:"kind"`
	DeviceID    string        `json:"device_id"`
	Found       bool          `json:"found"`
	Device      *model.Device `json:"device,omitempty"`
	Title       string        `json:"title,omitempty"`
	Latitude    string        `json:"latitude,omitempty"`
	Longitude   string        `json:"longitude,omitempty"`
	DriveStatus string        `json:"drive_status,omitempty"`
	LastUpdated string        `json:"last_updated,omitempty"`
	Editing     bool          `json:"editing"`
	UpdatedAt   time.Time     `json:"updated_at"`
	LastError   string        `json:"last_error,omitempty"`
}

// View returns the current view of the session, a *DetailView or a *MapView.
func (s *Session) View() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lastErr string
	if s.lastErr != nil {
		lastErr = s.lastErr.Error()
	}

	if s.Kind == KindMap {
		return &MapView{
			ID:        s.ID,
			Kind:      s.Kind,
			Region:    s.region,
			Markers:   Markers(s.devices),
			UpdatedAt: s.updatedAt,
			LastError: lastErr,
		}
	}

	view := &DetailView{
		ID:        s.ID,
		Kind:      s.Kind,
		DeviceID:  s.DeviceID,
		Editing:   s.editing,
		UpdatedAt: s.updatedAt,
		LastError: lastErr,
	}
	d, ok := s.deviceLocked()
	if !ok {
		return view
	}
	fillDetail(view, d)
	return view
}

func fillDetail(view *DetailView, d model.Device) {
	view.Found = true
	view.Device = &d
	view.DriveStatus = d.DriveStatus()
	view.Title = d.DisplayName + " (" + view.DriveStatus + ")"

	if p := d.LatestDevicePoint; p != nil {
		if p.Lat != nil {
			view.Latitude = strconv.FormatFloat(*p.Lat, 'f', 7, 64)
		}
		if p.Lng != nil {
			view.Longitude = strconv.FormatFloat(*p.Lng, 'f', 7, 64)
		}
	}

	view.LastUpdated = notAvailable
	if p := d.LatestDevicePoint; p != nil {
		if t, err := parse.ServerTime(p.DtServer); err == nil {
			view.LastUpdated = t.Format(time.RFC3339)
		}
	}
}
