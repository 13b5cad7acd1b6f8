package model

// Override holds the device fields a user can edit locally.
type Override struct {
	DeviceID    DeviceID `json:"device_id"`
	DisplayName string   `json:"display_name"`
	Make        string   `json:"make"`
	Model       string   `json:"model"`
	FactoryID   string   `json:"factory_id"`
}

// Edits is a partial set of override fields collected from an edit form.
// Nil fields are left untouched, empty strings are applied.
type Edits struct {
	DisplayName *string `json:"display_name,omitempty"`
	Make        *string `json:"make,omitempty"`
	Model       *string `json:"model,omitempty"`
	FactoryID   *string `json:"factory_id,omitempty"`
}

// Empty reports whether no field is set.
func (e Edits) Empty() bool {
	return e.DisplayName == nil && e.Make == nil && e.Model == nil && e.FactoryID == nil
}
