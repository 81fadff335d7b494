package repositories

import (
	"fmt"
	"time"

	"ble-bridge/models"
	"ble-bridge/repositories/base"
	"ble-bridge/repositories/interfaces"

	"gorm.io/gorm"
)

const (
	knownDevicesTable        = "known_devices"
	availabilityHistoryTable = "availability_histories"
)

// DeviceRepository implements DeviceRepositoryInterface.
type DeviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new instance of DeviceRepository.
func NewDeviceRepository(db *gorm.DB) interfaces.DeviceRepositoryInterface {
	return &DeviceRepository{
		db: db,
	}
}

// UpsertDevice records a sighting within a transaction.
func (dr *DeviceRepository) UpsertDevice(tx *gorm.DB, device models.DeviceDescriptor, seenAt time.Time) error {
	known := &models.KnownDevice{}
	err := tx.Where("device_id = ?", device.ID).
		Attrs(models.KnownDevice{FirstSeen: seenAt, Availability: models.Online}).
		Assign(models.KnownDevice{
			Name:     device.Name,
			Family:   device.Family,
			Model:    device.Model,
			MAC:      device.MAC,
			LastSeen: seenAt,
		}).
		FirstOrCreate(known).Error
	return base.HandleDBError("upsert", knownDevicesTable, "device_id "+device.ID, err)
}

// RecordAvailability saves the availability for a device within a transaction.
func (dr *DeviceRepository) RecordAvailability(tx *gorm.DB, msg *models.AvailabilityMessage) error {
	device := msg.Device

	// 1. Upsert the current availability.
	current := models.KnownDevice{
		Name:         device.Name,
		Family:       device.Family,
		Model:        device.Model,
		Availability: msg.State,
	}
	if msg.State == models.Online {
		current.LastSeen = msg.Timestamp
	}
	known := &models.KnownDevice{}
	err := tx.Where("device_id = ?", device.ID).
		Attrs(models.KnownDevice{FirstSeen: msg.Timestamp, LastSeen: msg.Timestamp}).
		Assign(current).
		FirstOrCreate(known).Error
	if err != nil {
		return base.HandleDBError("save", knownDevicesTable, "device_id "+device.ID, err)
	}

	// 2. Always create a new record in the history table.
	history := &models.AvailabilityHistory{
		DeviceID:  device.ID,
		Family:    device.Family,
		State:     msg.State,
		MessageID: msg.ID,
		Timestamp: msg.Timestamp,
	}
	if err := tx.Create(history).Error; err != nil {
		return base.HandleDBError("create", availabilityHistoryTable, "device_id "+device.ID, err)
	}
	return nil
}

// GetDevice retrieves the inventory row of a device.
func (dr *DeviceRepository) GetDevice(deviceID string) (*models.KnownDevice, error) {
	var known models.KnownDevice
	err := dr.db.Where("device_id = ?", deviceID).First(&known).Error
	if err != nil {
		return nil, base.HandleDBError("get", knownDevicesTable, "device_id "+deviceID, err)
	}
	return &known, nil
}

// ListDevices retrieves every known device; an empty family lists all.
func (dr *DeviceRepository) ListDevices(family models.Family) ([]models.KnownDevice, error) {
	var devices []models.KnownDevice
	query := dr.db.Order("device_id asc")
	if family != "" {
		query = query.Where("family = ?", family)
	}
	if err := query.Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// GetAvailabilityHistory retrieves availability history for a device with pagination.
func (dr *DeviceRepository) GetAvailabilityHistory(deviceID string, limit int) ([]models.AvailabilityHistory, error) {
	var history []models.AvailabilityHistory
	query := dr.db.Where("device_id = ?", deviceID).Order("timestamp desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to get availability history: %w", err)
	}
	return history, nil
}
