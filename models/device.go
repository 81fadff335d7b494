package models

import (
	"fmt"
	"time"
)

// Family is a sensor vendor/protocol group.
type Family string

const (
	FamilyRuuvi  Family = "ruuvitag"
	FamilyXiaomi Family = "xiaomi"
)

// Families lists every family the bridge can decode.
var Families = []Family{FamilyRuuvi, FamilyXiaomi}

// ParseFamily validates a configuration key.
func ParseFamily(s string) (Family, error) {
	for _, f := range Families {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown sensor family %q", s)
}

// Model identifies a sub-model inside a family.
type Model string

const (
	ModelUnknown    Model = ""
	ModelRuuviTag   Model = "RuuviTag"
	ModelRuuviAir   Model = "Ruuvi Air"
	ModelLYWSD03MMC Model = "LYWSD03MMC"
	ModelHHCCJCY01  Model = "HHCCJCY01"
)

var familyModels = map[Family][]Model{
	FamilyRuuvi:  {ModelRuuviTag, ModelRuuviAir},
	FamilyXiaomi: {ModelLYWSD03MMC, ModelHHCCJCY01},
}

// Supports reports whether m is a known model of family f.
func (f Family) Supports(m Model) bool {
	for _, known := range familyModels[f] {
		if known == m {
			return true
		}
	}
	return false
}

// Availability is the online/offline state of a device.
type Availability string

const (
	Online  Availability = "online"
	Offline Availability = "offline"
)

// Device is a configuration-declared (or lazily discovered) sensor identity.
type Device struct {
	ID      string
	Name    string
	Family  Family
	Model   Model
	Timeout time.Duration // zero means the family default
}

// DeviceDescriptor is the device block carried by every emitted message.
type DeviceDescriptor struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Family  Family        `json:"family"`
	Model   Model         `json:"model,omitempty"`
	MAC     string        `json:"mac,omitempty"`
	RSSI    *int16        `json:"rssi,omitempty"`
	Timeout time.Duration `json:"-"`
}
