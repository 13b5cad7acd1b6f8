// Package reconcile merges fetched device records with locally edited metadata.
package reconcile

import "fleet-tracking-backend/internal/model"

// Reconcile overlays local overrides onto the server list. The result always
// follows the server list: same length, same order, devices known only locally
// are dropped. With no overrides the server list is returned as-is.
func Reconcile(server []model.Device, local []model.Override) []model.Device {
	if len(server) == 0 {
		return []model.Device{}
	}
	if len(local) == 0 {
		return server
	}

	merged := make([]model.Device, len(server))
	for i, device := range server {
		override, ok := find(local, device.DeviceID)
		if !ok {
			merged[i] = device
			continue
		}
		device.DisplayName = override.DisplayName
		device.Make = override.Make
		device.Model = override.Model
		device.FactoryID = override.FactoryID
		merged[i] = device
	}
	return merged
}

// find returns the first override for id. The lists are small, a scan is enough.
func find(local []model.Override, id model.DeviceID) (model.Override, bool) {
	for _, o := range local {
		if o.DeviceID == id {
			return o, true
		}
	}
	return model.Override{}, false
}

// Overrides projects a persisted device list into its override set.
func Overrides(devices []model.Device) []model.Override {
	if len(devices) == 0 {
		return nil
	}
	out := make([]model.Override, len(devices))
	for i, d := range devices {
		out[i] = d.Override()
	}
	return out
}

// ApplyEdit returns current with the present edit fields applied. Telemetry,
// odometer and settings are carried over untouched.
func ApplyEdit(current model.Device, edits model.Edits) model.Device {
	updated := current
	if edits.DisplayName != nil {
		updated.DisplayName = *edits.DisplayName
	}
	if edits.Make != nil {
		updated.Make = *edits.Make
	}
	if edits.Model != nil {
		updated.Model = *edits.Model
	}
	if edits.FactoryID != nil {
		updated.FactoryID = *edits.FactoryID
	}
	return updated
}

// Splice returns a copy of list with every entry matching updated's id replaced.
func Splice(list []model.Device, updated model.Device) []model.Device {
	out := make([]model.Device, len(list))
	for i, d := range list {
		if d.DeviceID == updated.DeviceID {
			out[i] = updated
			continue
		}
		out[i] = d
	}
	return out
}

// StatusChange is a drive status transition observed between two cycles.
type StatusChange struct {
	DeviceID    model.DeviceID
	DisplayName string
	From        string
	To          string
}

// StatusChanges lists drive status transitions of devices present in both lists.
func StatusChanges(prev, next []model.Device) []StatusChange {
	if len(prev) == 0 || len(next) == 0 {
		return nil
	}
	before := make(map[model.DeviceID]string, len(prev))
	for _, d := range prev {
		before[d.DeviceID] = d.DriveStatus()
	}

	var changes []StatusChange
	for _, d := range next {
		from, ok := before[d.DeviceID]
		if !ok {
			continue
		}
		if to := d.DriveStatus(); to != from {
			changes = append(changes, StatusChange{
				DeviceID:    d.DeviceID,
				DisplayName: d.DisplayName,
				From:        from,
				To:          to,
			})
		}
	}
	return changes
}
