package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gorm.io/datatypes"
)

// DeviceID is the raw JSON token of an upstream device_id. Numeric and string
// identifiers are kept apart, so 1 and "1" are different devices.
type DeviceID string

// NumericDeviceID builds the id the upstream API sends as a JSON number.
func NumericDeviceID(n int64) DeviceID {
	return DeviceID(strconv.FormatInt(n, 10))
}

// StringDeviceID builds the id the upstream API sends as a JSON string.
func StringDeviceID(s string) DeviceID {
	b, _ := json.Marshal(s)
	return DeviceID(b)
}

// UnmarshalJSON stores the token as-is. Only numbers and strings are accepted.
func (id *DeviceID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) == 0 {
		return fmt.Errorf("empty device_id")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("invalid device_id %s: %w", b, err)
		}
		// "\u0031" and "1" are the same string, keep one spelling.
		*id = StringDeviceID(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("invalid device_id %s: %w", b, err)
		}
		// 7 and 7.0 compare equal upstream, keep one spelling.
		if f, err := n.Float64(); err == nil && math.Abs(f) <= 1<<53 && f == math.Trunc(f) {
			*id = NumericDeviceID(int64(f))
			return nil
		}
	default:
		return fmt.Errorf("device_id must be a number or a string, got %s", b)
	}
	*id = DeviceID(b)
	return nil
}

// MarshalJSON writes the original token back.
func (id DeviceID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	return []byte(id), nil
}

// String renders the id the way a client would type it in a URL.
func (id DeviceID) String() string {
	if len(id) > 0 && id[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(id), &s); err == nil {
			return s
		}
	}
	return string(id)
}

// DriveStatus is the upstream drive state of a device.
type DriveStatus string

const (
	DriveStatusDriving DriveStatus = "driving"
	DriveStatusIdle    DriveStatus = "idle"
	DriveStatusOff     DriveStatus = "off"
)

// DeviceState holds the state block of a device point.
type DeviceState struct {
	DriveStatus string `json:"drive_status,omitempty"`
	Extra       Extras `json:"-"`
}

// UnmarshalJSON decodes the known members, see Device.UnmarshalJSON.
func (s *DeviceState) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil || o == nil {
		return err
	}
	take(o, "drive_status", &s.DriveStatus)
	s.Extra = o.extras()
	return nil
}

// MarshalJSON writes the known members over the passed-through ones.
func (s DeviceState) MarshalJSON() ([]byte, error) {
	o := s.Extra.clone()
	if s.DriveStatus != "" {
		if err := o.put("drive_status", s.DriveStatus); err != nil {
			return nil, err
		}
	}
	return o.marshal()
}

// DeviceParams holds the engine readings of a device point.
type DeviceParams struct {
	EngRPM json.RawMessage `json:"eng_rpm,omitempty"`
	Extra  Extras          `json:"-"`
}

// UnmarshalJSON decodes the known members, see Device.UnmarshalJSON.
func (p *DeviceParams) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil || o == nil {
		return err
	}
	take(o, "eng_rpm", &p.EngRPM)
	p.Extra = o.extras()
	return nil
}

// MarshalJSON writes the known members over the passed-through ones.
func (p DeviceParams) MarshalJSON() ([]byte, error) {
	o := p.Extra.clone()
	if len(p.EngRPM) > 0 {
		o["eng_rpm"] = p.EngRPM
	}
	return o.marshal()
}

// ServerTimestamp is dt_server as sent upstream: either a date string or a
// number of milliseconds since the epoch.
type ServerTimestamp string

// UnmarshalJSON accepts strings and numbers.
func (t *ServerTimestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = ServerTimestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid dt_server %s: %w", b, err)
	}
	*t = ServerTimestamp(n.String())
	return nil
}

// DevicePoint is the latest telemetry sample of a device.
type DevicePoint struct {
	Lat         *float64        `json:"lat,omitempty"`
	Lng         *float64        `json:"lng,omitempty"`
	DtServer    ServerTimestamp `json:"dt_server,omitempty"`
	DeviceState *DeviceState    `json:"device_state,omitempty"`
	Params      *DeviceParams   `json:"params,omitempty"`
	Extra       Extras          `json:"-"`
}

// UnmarshalJSON decodes the known members, see Device.UnmarshalJSON.
func (p *DevicePoint) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil || o == nil {
		return err
	}
	take(o, "lat", &p.Lat)
	take(o, "lng", &p.Lng)
	take(o, "dt_server", &p.DtServer)
	take(o, "device_state", &p.DeviceState)
	take(o, "params", &p.Params)
	p.Extra = o.extras()
	return nil
}

// MarshalJSON writes the known members over the passed-through ones.
func (p DevicePoint) MarshalJSON() ([]byte, error) {
	o := p.Extra.clone()
	members := []struct {
		key   string
		value any
		set   bool
	}{
		{"lat", p.Lat, p.Lat != nil},
		{"lng", p.Lng, p.Lng != nil},
		{"dt_server", p.DtServer, p.DtServer != ""},
		{"device_state", p.DeviceState, p.DeviceState != nil},
		{"params", p.Params, p.Params != nil},
	}
	for _, m := range members {
		if !m.set {
			continue
		}
		if err := o.put(m.key, m.value); err != nil {
			return nil, err
		}
	}
	return o.marshal()
}

// Device is a device record from the fleet API. The same shape is used for
// records with local overrides applied and for what is persisted locally.
//
// Decoding is lenient: a known member of the wrong type is left at its zero
// value instead of failing the record, and members the type does not model
// are kept in Extra and written back on marshal.
type Device struct {
	DeviceID          DeviceID       `json:"device_id"`
	DisplayName       string         `json:"display_name"`
	Make              string         `json:"make"`
	Model             string         `json:"model"`
	FactoryID         string         `json:"factory_id"`
	LatestDevicePoint *DevicePoint   `json:"latest_device_point,omitempty"`
	Odometer          datatypes.JSON `json:"odometer,omitempty"`
	Settings          datatypes.JSON `json:"settings,omitempty"`
	Extra             Extras         `json:"-"`
}

// UnmarshalJSON decodes a device object. Only a body that is not an object
// is an error.
func (d *Device) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil || o == nil {
		return err
	}
	take(o, "device_id", &d.DeviceID)
	take(o, "display_name", &d.DisplayName)
	take(o, "make", &d.Make)
	take(o, "model", &d.Model)
	take(o, "factory_id", &d.FactoryID)
	take(o, "latest_device_point", &d.LatestDevicePoint)
	take(o, "odometer", &d.Odometer)
	take(o, "settings", &d.Settings)
	d.Extra = o.extras()
	return nil
}

// MarshalJSON writes the known members over the passed-through ones.
func (d Device) MarshalJSON() ([]byte, error) {
	o := d.Extra.clone()
	for key, value := range map[string]any{
		"device_id":    d.DeviceID,
		"display_name": d.DisplayName,
		"make":         d.Make,
		"model":        d.Model,
		"factory_id":   d.FactoryID,
	} {
		if err := o.put(key, value); err != nil {
			return nil, err
		}
	}
	if d.LatestDevicePoint != nil {
		if err := o.put("latest_device_point", d.LatestDevicePoint); err != nil {
			return nil, err
		}
	}
	if len(d.Odometer) > 0 {
		o["odometer"] = json.RawMessage(d.Odometer)
	}
	if len(d.Settings) > 0 {
		o["settings"] = json.RawMessage(d.Settings)
	}
	return o.marshal()
}

// DriveStatus returns the raw drive status of the latest point, if any.
func (d Device) DriveStatus() string {
	if d.LatestDevicePoint == nil || d.LatestDevicePoint.DeviceState == nil {
		return ""
	}
	return d.LatestDevicePoint.DeviceState.DriveStatus
}

// Coordinates returns the latest position when both components are present.
func (d Device) Coordinates() (lat, lng float64, ok bool) {
	p := d.LatestDevicePoint
	if p == nil || p.Lat == nil || p.Lng == nil {
		return 0, 0, false
	}
	return *p.Lat, *p.Lng, true
}

// Override returns the locally editable fields of d.
func (d Device) Override() Override {
	return Override{
		DeviceID:    d.DeviceID,
		DisplayName: d.DisplayName,
		Make:        d.Make,
		Model:       d.Model,
		FactoryID:   d.FactoryID,
	}
}
