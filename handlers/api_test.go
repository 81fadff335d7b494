package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ble-bridge/internal/pipeline"
	"ble-bridge/internal/registry"
	"ble-bridge/models"
	"ble-bridge/repositories/base"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeInventory struct {
	devices map[string]models.KnownDevice
	history []models.AvailabilityHistory
	err     error
	limit   int
}

func (f *fakeInventory) UpsertDevice(tx *gorm.DB, device models.DeviceDescriptor, seenAt time.Time) error {
	return nil
}

func (f *fakeInventory) RecordAvailability(tx *gorm.DB, msg *models.AvailabilityMessage) error {
	return nil
}

func (f *fakeInventory) GetDevice(deviceID string) (*models.KnownDevice, error) {
	d, ok := f.devices[deviceID]
	if !ok {
		return nil, base.HandleDBError("get", "known_devices", deviceID, gorm.ErrRecordNotFound)
	}
	return &d, nil
}

func (f *fakeInventory) ListDevices(family models.Family) ([]models.KnownDevice, error) {
	return nil, nil
}

func (f *fakeInventory) GetAvailabilityHistory(deviceID string, limit int) ([]models.AvailabilityHistory, error) {
	f.limit = limit
	return f.history, f.err
}

func newRegistry(t *testing.T, family models.Family, ids ...string) *registry.Registry {
	t.Helper()
	devices := make([]models.Device, 0, len(ids))
	for _, id := range ids {
		devices = append(devices, models.Device{ID: id, Name: "sensor " + id, Family: family})
	}
	reg, err := registry.New(registry.Options{
		Family:         family,
		DefaultTimeout: time.Minute,
		Devices:        devices,
		Now:            func() time.Time { return now },
	})
	require.NoError(t, err)
	return reg
}

func newTestServer(t *testing.T, inventory *fakeInventory) http.Handler {
	t.Helper()
	ruuvi := newRegistry(t, models.FamilyRuuvi, "CB:B8:33:4C:88:4F")
	ruuvi.MarkSeen("CB:B8:33:4C:88:4F")
	xiaomi := newRegistry(t, models.FamilyXiaomi, "A4:C1:38:00:11:22", "C4:7C:8D:44:55:66")

	h := NewAPIHandler([]*registry.Registry{ruuvi, xiaomi}, nil, func() pipeline.Stats {
		return pipeline.Stats{Received: 10, Emitted: 4}
	})
	if inventory != nil {
		h.inventory = inventory
	}
	return NewServer(h, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, srv http.Handler, target string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthCheck(t *testing.T) {
	code, body := get(t, newTestServer(t, nil), "/api/v1/health")
	require.Equal(t, http.StatusOK, code)

	data := body["data"].(map[string]any)
	assert.Equal(t, "ble-bridge", data["service"])
	families := data["families"].([]any)
	require.Len(t, families, 2)
	ruuvi := families[0].(map[string]any)
	assert.Equal(t, "ruuvitag", ruuvi["family"])
	assert.EqualValues(t, 1, ruuvi["online"])
	assert.EqualValues(t, 10, data["pipeline"].(map[string]any)["received"])
}

func TestListDevices(t *testing.T) {
	srv := newTestServer(t, nil)

	code, body := get(t, srv, "/api/v1/devices")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["data"].(map[string]any)["count"])

	code, body = get(t, srv, "/api/v1/devices?family=xiaomi")
	require.Equal(t, http.StatusOK, code)
	items := body["data"].(map[string]any)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "A4:C1:38:00:11:22", items[0].(map[string]any)["id"])
	assert.Equal(t, "offline", items[0].(map[string]any)["availability"])

	code, body = get(t, srv, "/api/v1/devices?family=govee")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", body["status"])
}

func TestGetDevice(t *testing.T) {
	srv := newTestServer(t, nil)

	code, body := get(t, srv, "/api/v1/devices/cb:b8:33:4c:88:4f")
	require.Equal(t, http.StatusOK, code)
	device := body["data"].(map[string]any)
	assert.Equal(t, "online", device["availability"])
	assert.Equal(t, "2024-05-01T12:00:00Z", device["last_seen"])
	assert.EqualValues(t, 60000, device["timeout_ms"])

	code, body = get(t, srv, "/api/v1/devices/00:00:00:00:00:00")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["message"], "Device not found")
}

func TestGetDeviceHistory(t *testing.T) {
	t.Run("inventory disabled", func(t *testing.T) {
		code, _ := get(t, newTestServer(t, nil), "/api/v1/devices/CB:B8:33:4C:88:4F/history")
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})

	t.Run("history", func(t *testing.T) {
		inv := &fakeInventory{
			devices: map[string]models.KnownDevice{"CB:B8:33:4C:88:4F": {DeviceID: "CB:B8:33:4C:88:4F"}},
			history: []models.AvailabilityHistory{
				{DeviceID: "CB:B8:33:4C:88:4F", State: models.Offline, Timestamp: now},
				{DeviceID: "CB:B8:33:4C:88:4F", State: models.Online, Timestamp: now.Add(-time.Hour)},
			},
		}
		code, body := get(t, newTestServer(t, inv), "/api/v1/devices/cb:b8:33:4c:88:4f/history?limit=2")
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 2, body["data"].(map[string]any)["count"])
		assert.Equal(t, 2, inv.limit)
	})

	t.Run("unknown device", func(t *testing.T) {
		inv := &fakeInventory{devices: map[string]models.KnownDevice{}}
		code, _ := get(t, newTestServer(t, inv), "/api/v1/devices/AA:BB/history")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("storage failure", func(t *testing.T) {
		inv := &fakeInventory{
			devices: map[string]models.KnownDevice{"AA:BB": {DeviceID: "AA:BB"}},
			err:     errors.New("connection reset"),
		}
		code, body := get(t, newTestServer(t, inv), "/api/v1/devices/AA:BB/history")
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, "Failed to load availability history", body["message"])
	})
}

func TestUnknownRoute(t *testing.T) {
	code, body := get(t, newTestServer(t, nil), "/api/v1/robots")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", body["status"])
}
