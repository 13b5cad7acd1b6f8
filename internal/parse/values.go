package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fleet-tracking-backend/internal/model"
)

var epochRe = regexp.MustCompile(`^-?\d+$`)

// Layouts seen in dt_server, tried in order.
var serverTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
}

// DriveStatus normalizes a raw drive status. A missing status counts as off.
func DriveStatus(raw string) model.DriveStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return model.DriveStatusOff
	}
	return model.DriveStatus(s)
}

// ServerTime parses dt_server. Bare integers are milliseconds since the epoch,
// strings without a zone are read as UTC.
func ServerTime(raw model.ServerTimestamp) (time.Time, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if epochRe.MatchString(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid epoch timestamp %q: %w", s, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	for _, layout := range serverTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %q", s)
}
