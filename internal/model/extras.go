package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Extras holds the members of an upstream object that its Go type does not
// model. They are written back unchanged when the object is marshaled.
type Extras map[string]json.RawMessage

func (e Extras) clone() object {
	o := make(object, len(e)+8)
	for k, v := range e {
		o[k] = v
	}
	return o
}

// object is a JSON object split into its raw members.
type object map[string]json.RawMessage

// decodeObject returns nil for a JSON null and an error for anything that is
// not an object.
func decodeObject(b []byte) (object, error) {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil, nil
	}
	var o object
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("expected a JSON object: %w", err)
	}
	return o, nil
}

// take decodes key into dst and removes it from o. A value of the wrong type
// leaves dst untouched and stays in o, so it is passed through unless the
// field is written on marshal.
func take[T any](o object, key string, dst *T) {
	raw, ok := o[key]
	if !ok {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	*dst = v
	delete(o, key)
}

func (o object) extras() Extras {
	if len(o) == 0 {
		return nil
	}
	return Extras(o)
}

func (o object) put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	o[key] = raw
	return nil
}

func (o object) marshal() ([]byte, error) {
	return json.Marshal(map[string]json.RawMessage(o))
}
