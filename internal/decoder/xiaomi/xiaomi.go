// Package xiaomi decodes Xiaomi thermometer and plant-sensor service data:
// the open-firmware custom format carried under 0x181A and the vendor
// MiBeacon format carried under 0xFE95.
package xiaomi

import (
	"errors"
	"fmt"
	"strings"

	"ble-bridge/models"
)

// MiBeacon product identifiers.
const (
	ProductHHCCJCY01  uint16 = 0x0098
	ProductLYWSD03MMC uint16 = 0x055B
)

var (
	ErrPayloadTooShort = errors.New("xiaomi: payload too short")
	ErrEncrypted       = errors.New("xiaomi: encrypted MiBeacon frame")
	ErrNoObject        = errors.New("xiaomi: MiBeacon frame carries no object")
)

// UnsupportedObjectError is returned for a MiBeacon object type with no decoder.
type UnsupportedObjectError struct {
	Type uint16
}

func (e *UnsupportedObjectError) Error() string {
	return fmt.Sprintf("xiaomi: unsupported MiBeacon object 0x%04X", e.Type)
}

// ProductModel maps a MiBeacon product id onto a model.
func ProductModel(product uint16) models.Model {
	switch product {
	case ProductHHCCJCY01:
		return models.ModelHHCCJCY01
	case ProductLYWSD03MMC:
		return models.ModelLYWSD03MMC
	}
	return models.ModelUnknown
}

var nameModels = map[string]models.Model{
	"lywsd03mmc":  models.ModelLYWSD03MMC,
	"flower care": models.ModelHHCCJCY01,
	"flower mate": models.ModelHHCCJCY01,
}

// NameModel matches an advertised local name case-insensitively.
func NameModel(name string) (models.Model, bool) {
	m, ok := nameModels[strings.ToLower(strings.TrimSpace(name))]
	return m, ok
}

var addressPrefixes = []string{
	"A4:C1:38", // Telink thermometers
	"C4:7C:8D", // HHCC plant sensors
}

// HasVendorPrefix reports whether address starts with a known vendor OUI.
func HasVendorPrefix(address string) bool {
	a := models.NormalizeID(address)
	for _, p := range addressPrefixes {
		if strings.HasPrefix(a, p) {
			return true
		}
	}
	return false
}

func formatMAC(b []byte, reverse bool) string {
	parts := make([]string, len(b))
	for i := range b {
		x := b[i]
		if reverse {
			x = b[len(b)-1-i]
		}
		parts[i] = fmt.Sprintf("%02X", x)
	}
	return strings.Join(parts, ":")
}
