package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-tracking-backend/config"
	"fleet-tracking-backend/internal/model"
)

func newTestClient(url string) *Client {
	return NewClient(&config.APIConfig{
		URL:     url + "/",
		Key:     "secret key",
		Headers: map[string]string{"X-Client": "fleetd"},
		Timeout: 2 * time.Second,
	})
}

func TestClient_FetchDevices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/device", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("latest_point"))
		assert.Equal(t, "secret key", r.URL.Query().Get("api-key"))
		assert.Equal(t, "fleetd", r.Header.Get("X-Client"))

		resp := ApiResponse{ResultList: []model.Device{
			{DeviceID: model.NumericDeviceID(101), DisplayName: "Truck"},
			{DeviceID: model.StringDeviceID("v-2"), DisplayName: "Van"},
		}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	devices, err := newTestClient(server.URL).FetchDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, model.NumericDeviceID(101), devices[0].DeviceID)
	assert.Equal(t, model.StringDeviceID("v-2"), devices[1].DeviceID)
	assert.Equal(t, "Van", devices[1].DisplayName)
}

func TestClient_FetchDevices_Shapes(t *testing.T) {
	testCases := []struct {
		name      string
		status    int
		body      string
		expected  []model.Device
		expectErr bool
	}{
		{name: "Missing result_list", status: http.StatusOK, body: `{"status":"ok"}`, expected: []model.Device{}},
		{name: "Null result_list", status: http.StatusOK, body: `{"result_list":null}`, expected: []model.Device{}},
		{name: "Non-array result_list", status: http.StatusOK, body: `{"result_list":"none"}`, expected: []model.Device{}},
		{name: "Array body", status: http.StatusOK, body: `[1,2]`, expected: []model.Device{}},
		{name: "Empty result_list", status: http.StatusOK, body: `{"result_list":[]}`, expected: []model.Device{}},
		{name: "Not JSON", status: http.StatusOK, body: `<html>`, expectErr: true},
		{name: "Bad device_id is zeroed", status: http.StatusOK, body: `{"result_list":[{"device_id":true,"display_name":"X"}]}`, expected: []model.Device{{DisplayName: "X", Extra: model.Extras{"device_id": json.RawMessage("true")}}}},
		{name: "Non-object entries are skipped", status: http.StatusOK, body: `{"result_list":[null,7,"x",{"device_id":1}]}`, expected: []model.Device{{DeviceID: model.NumericDeviceID(1)}}},
		{name: "Server error", status: http.StatusBadGateway, body: `{}`, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			devices, err := newTestClient(server.URL).FetchDevices(context.Background())
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, devices)
		})
	}
}

func TestClient_FetchDevices_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL).FetchDevices(ctx)
	assert.Error(t, err)
}

func TestClient_FetchDevices_MixedRecords(t *testing.T) {
	body := `{"result_list":[
		{"device_id":1,"display_name":"Truck","latest_device_point":{"lat":40.5,"lng":-73.9,"speed":42,"device_state":{"drive_status":"driving","drive_status_duration":{"value":120}}}},
		{"device_id":2,"display_name":"Van","latest_device_point":{"lat":"37.5","lng":-122.1}},
		{"device_id":3,"display_name":{"first":"Car"},"make":"Kia"},
		{"device_id":false,"display_name":"No id"}
	]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	devices, err := newTestClient(server.URL).FetchDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 4, "one odd field never fails the listing")

	_, _, ok := devices[0].Coordinates()
	assert.True(t, ok)
	assert.Equal(t, "driving", devices[0].DriveStatus())

	_, _, ok = devices[1].Coordinates()
	assert.False(t, ok, "a string latitude drops the position only")
	assert.Equal(t, "Van", devices[1].DisplayName)
	out, err := json.Marshal(devices[1].LatestDevicePoint)
	require.NoError(t, err)
	assert.JSONEq(t, `{"lat":"37.5","lng":-122.1}`, string(out))

	assert.Empty(t, devices[2].DisplayName)
	assert.Equal(t, "Kia", devices[2].Make)

	assert.Empty(t, devices[3].DeviceID)
	assert.Equal(t, "No id", devices[3].DisplayName)

	// Fields the model does not declare survive a save.
	out, err = json.Marshal(devices[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"device_id":1,"display_name":"Truck","make":"","model":"","factory_id":"",
		"latest_device_point":{"lat":40.5,"lng":-73.9,"speed":42,"device_state":{"drive_status":"driving","drive_status_duration":{"value":120}}}}`, string(out))
}
