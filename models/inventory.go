package models

import (
	"time"
)

// KnownDevice is the inventory row of every device the bridge has tracked.
type KnownDevice struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	DeviceID     string       `gorm:"uniqueIndex" json:"deviceId"`
	Name         string       `json:"name"`
	Family       Family       `gorm:"index" json:"family"`
	Model        Model        `json:"model"`
	MAC          string       `json:"mac"`
	Availability Availability `json:"availability"`
	FirstSeen    time.Time    `json:"firstSeen"`
	LastSeen     time.Time    `json:"lastSeen"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// AvailabilityHistory keeps every published availability transition.
type AvailabilityHistory struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	DeviceID  string       `gorm:"index" json:"deviceId"`
	Family    Family       `json:"family"`
	State     Availability `json:"state"`
	MessageID string       `json:"messageId"`
	Timestamp time.Time    `json:"timestamp"`
	CreatedAt time.Time    `json:"createdAt"`
}
