package interfaces

import (
	"time"

	"ble-bridge/models"

	"gorm.io/gorm" // gorm 패키지 임포트
)

// DeviceRepositoryInterface defines the contract for device inventory data access.
type DeviceRepositoryInterface interface {
	// UpsertDevice records a sighting, creating the inventory row on first sight.
	UpsertDevice(tx *gorm.DB, device models.DeviceDescriptor, seenAt time.Time) error

	// RecordAvailability stores the current availability and appends it to the history.
	RecordAvailability(tx *gorm.DB, msg *models.AvailabilityMessage) error

	// GetDevice retrieves one inventory row.
	GetDevice(deviceID string) (*models.KnownDevice, error)

	// ListDevices retrieves every known device, optionally filtered by family.
	ListDevices(family models.Family) ([]models.KnownDevice, error)

	// GetAvailabilityHistory retrieves availability transitions, newest first.
	GetAvailabilityHistory(deviceID string, limit int) ([]models.AvailabilityHistory, error)
}
