package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fleet-tracking-backend/internal/model"
)

func TestDriveStatus(t *testing.T) {
	testCases := []struct {
		raw      string
		expected model.DriveStatus
	}{
		{raw: "driving", expected: model.DriveStatusDriving},
		{raw: "Idle", expected: model.DriveStatusIdle},
		{raw: " OFF ", expected: model.DriveStatusOff},
		{raw: "", expected: model.DriveStatusOff},
		{raw: "towing", expected: model.DriveStatus("towing")},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.expected, DriveStatus(tc.raw))
		})
	}
}

func TestServerTime(t *testing.T) {
	testCases := []struct {
		name      string
		raw       model.ServerTimestamp
		expected  time.Time
		expectErr bool
	}{
		{
			name:     "RFC3339",
			raw:      "2024-05-01T10:20:30Z",
			expected: time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC),
		},
		{
			name:     "RFC3339 with offset",
			raw:      "2024-05-01T12:20:30+02:00",
			expected: time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC),
		},
		{
			name:     "Space separated",
			raw:      "2024-05-01 10:20:30",
			expected: time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC),
		},
		{
			name:     "No zone",
			raw:      "2024-05-01T10:20:30",
			expected: time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC),
		},
		{
			name:     "Epoch milliseconds",
			raw:      "1714558830000",
			expected: time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC),
		},
		{name: "Empty", raw: "", expectErr: true},
		{name: "Garbage", raw: "yesterday", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ServerTime(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.True(t, tc.expected.Equal(parsed), "got %v", parsed)
			}
		})
	}
}
