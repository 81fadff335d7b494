package models

import (
	"strings"
	"time"
)

// Well-known 16-bit service data identifiers, lower-case hex.
const (
	ServiceMiBeacon            = "fe95"
	ServiceEnvironmentalSensor = "181a"
)

// ServiceData is one (service identifier, payload) pair of an advertisement.
type ServiceData struct {
	UUID string
	Data []byte
}

// Advertisement is one broadcast packet observed by the scanner. The pipeline
// never mutates it.
type Advertisement struct {
	Address          string
	LocalName        string
	ManufacturerData []byte
	ServiceData      []ServiceData
	RSSI             int16
	SeenAt           time.Time
}

// ServiceDataFor returns the payload advertised under uuid (short or long form).
func (a Advertisement) ServiceDataFor(uuid string) ([]byte, bool) {
	want := ShortUUID(uuid)
	for _, sd := range a.ServiceData {
		if ShortUUID(sd.UUID) == want {
			return sd.Data, true
		}
	}
	return nil, false
}

// ShortUUID reduces a Bluetooth base UUID to its 16-bit lower-case form.
// "0000FE95-0000-1000-8000-00805F9B34FB" -> "fe95". Other UUIDs are only lower-cased.
func ShortUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	if len(u) == 36 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, "-0000-1000-8000-00805f9b34fb") {
		return u[4:8]
	}
	return u
}

// NormalizeID is the canonical registry key for a device address or id.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
