package handlers

import (
	"net/http"
	"time"

	"ble-bridge/internal/pipeline"
	"ble-bridge/internal/registry"
	"ble-bridge/models"
	"ble-bridge/repositories/base"
	"ble-bridge/repositories/interfaces"
	"ble-bridge/utils"

	"github.com/labstack/echo/v4"
)

const defaultHistoryLimit = 50

// APIHandler serves the read-only registry status API.
type APIHandler struct {
	registries []*registry.Registry
	inventory  interfaces.DeviceRepositoryInterface
	stats      func() pipeline.Stats
}

// NewAPIHandler creates a new instance of APIHandler. inventory may be nil
// when the database is disabled.
func NewAPIHandler(registries []*registry.Registry, inventory interfaces.DeviceRepositoryInterface, stats func() pipeline.Stats) *APIHandler {
	return &APIHandler{
		registries: registries,
		inventory:  inventory,
		stats:      stats,
	}
}

// DeviceView is the API shape of one registry entry.
type DeviceView struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Family       models.Family       `json:"family"`
	Model        models.Model        `json:"model,omitempty"`
	MAC          string              `json:"mac,omitempty"`
	RSSI         *int16              `json:"rssi,omitempty"`
	Availability models.Availability `json:"availability"`
	LastSeen     *time.Time          `json:"last_seen,omitempty"`
	TimeoutMs    int64               `json:"timeout_ms"`
}

func newDeviceView(e registry.Entry) DeviceView {
	return DeviceView{
		ID:           e.Device.ID,
		Name:         e.Device.Name,
		Family:       e.Device.Family,
		Model:        e.Device.Model,
		MAC:          e.MAC,
		RSSI:         e.RSSI,
		Availability: e.Availability,
		LastSeen:     e.LastSeen,
		TimeoutMs:    e.Timeout.Milliseconds(),
	}
}

// ===================================================================
// HEALTH CHECK
// ===================================================================

// HealthCheck provides the service status with per-family device counts.
func (h *APIHandler) HealthCheck(c echo.Context) error {
	families := make([]registry.Stats, 0, len(h.registries))
	for _, reg := range h.registries {
		families = append(families, reg.Stats())
	}
	data := map[string]interface{}{
		"service":   "ble-bridge",
		"timestamp": utils.GetUnixTimestamp(),
		"families":  families,
	}
	if h.stats != nil {
		data["pipeline"] = h.stats()
	}
	return c.JSON(http.StatusOK, utils.SuccessResponse("Service is healthy", data))
}

// ===================================================================
// DEVICES
// ===================================================================

// ListDevices returns the registry entries, optionally filtered by ?family=.
func (h *APIHandler) ListDevices(c echo.Context) error {
	var family models.Family
	if raw := c.QueryParam("family"); raw != "" {
		f, err := models.ParseFamily(raw)
		if err != nil {
			return utils.NewBadRequestError(err.Error(), err)
		}
		family = f
	}

	devices := []DeviceView{}
	for _, reg := range h.registries {
		if family != "" && reg.Family() != family {
			continue
		}
		for _, e := range reg.Snapshot() {
			devices = append(devices, newDeviceView(e))
		}
	}
	return c.JSON(http.StatusOK, utils.SuccessResponse("Devices retrieved successfully",
		utils.ListResponse{Items: devices, Count: len(devices)}))
}

// GetDevice returns one registry entry.
func (h *APIHandler) GetDevice(c echo.Context) error {
	e, ok := h.find(c.Param("id"))
	if !ok {
		return utils.NewNotFoundError("Device not found: " + c.Param("id"))
	}
	return c.JSON(http.StatusOK, utils.SuccessResponse("Device retrieved successfully", newDeviceView(e)))
}

// GetDeviceHistory returns the recorded availability transitions of a device.
func (h *APIHandler) GetDeviceHistory(c echo.Context) error {
	if h.inventory == nil {
		return utils.NewServiceUnavailableError("Device inventory is disabled")
	}
	id := models.NormalizeID(c.Param("id"))
	if _, err := h.inventory.GetDevice(id); err != nil {
		if base.IsEntityNotFound(err) {
			return utils.NewNotFoundError("Device not found: " + id)
		}
		return utils.NewInternalServerError("Failed to load device", err)
	}

	page := utils.GetPaginationParams(c.QueryParam("limit"), "", defaultHistoryLimit)
	history, err := h.inventory.GetAvailabilityHistory(id, page.Limit)
	if err != nil {
		return utils.NewInternalServerError("Failed to load availability history", err)
	}
	return c.JSON(http.StatusOK, utils.SuccessResponse("Availability history retrieved successfully",
		utils.ListResponse{Items: history, Count: len(history)}))
}

func (h *APIHandler) find(id string) (registry.Entry, bool) {
	for _, reg := range h.registries {
		if e, err := reg.Get(id); err == nil {
			return e, true
		}
	}
	return registry.Entry{}, false
}
