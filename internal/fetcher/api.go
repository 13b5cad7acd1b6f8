package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"

	"fleet-tracking-backend/internal/model"
)

// ApiResponse models the top-level structure of the fleet API's device listing.
// Any other field of the body is ignored.
type ApiResponse struct {
	ResultList []model.Device `json:"result_list"`
}

// decodeResultList extracts result_list from a response body. ok is false when
// the body is valid JSON of another shape (not an object, no result_list, or a
// result_list that is not an array). Elements are decoded one by one and
// those that are not objects are skipped and counted.
func decodeResultList(body []byte) (devices []model.Device, skipped int, ok bool, err error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		if !json.Valid(body) {
			return nil, 0, false, fmt.Errorf("failed to unmarshal api response: %w", err)
		}
		return nil, 0, false, nil
	}

	raw := bytes.TrimSpace(envelope["result_list"])
	if len(raw) == 0 || raw[0] != '[' {
		return nil, 0, false, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, 0, false, fmt.Errorf("failed to unmarshal result_list: %w", err)
	}

	devices = make([]model.Device, 0, len(elements))
	for _, element := range elements {
		element = bytes.TrimSpace(element)
		if len(element) == 0 || element[0] != '{' {
			skipped++
			continue
		}
		var d model.Device
		if err := json.Unmarshal(element, &d); err != nil {
			skipped++
			continue
		}
		devices = append(devices, d)
	}
	return devices, skipped, true, nil
}
