package xiaomi

import (
	"encoding/binary"
	"fmt"
	"math"

	"ble-bridge/models"
)

// CustomFormat is the open-firmware layout variant, told apart by length.
type CustomFormat int

const (
	FormatATC1441 CustomFormat = iota + 1
	FormatPVVX
)

func (f CustomFormat) String() string {
	switch f {
	case FormatATC1441:
		return "atc1441"
	case FormatPVVX:
		return "pvvx"
	}
	return "unknown"
}

const (
	atcLength  = 13
	pvvxLength = 15
)

// Thermometer is a complete reading from the custom firmware format.
type Thermometer struct {
	Format         CustomFormat
	MAC            string
	Temperature    *models.Celsius
	Humidity       *models.RelativeHumidity
	Battery        *models.Percent
	BatteryVoltage *models.Volt
	Counter        *uint8
	Flags          *uint8 // pvvx only
}

// DecodeCustom decodes 0x181A service data.
//
// atc1441, 13 bytes, big-endian:
//
//	0-5   MAC
//	6-7   temperature, 0.1 °C
//	8     humidity, %
//	9     battery, %
//	10-11 battery, mV
//	12    frame counter
//
// pvvx, 15 bytes, little-endian:
//
//	0-5   MAC, reversed
//	6-7   temperature, 0.01 °C
//	8-9   humidity, 0.01 %
//	10-11 battery, mV
//	12    battery, %
//	13    frame counter
//	14    flags
func DecodeCustom(b []byte) (*Thermometer, error) {
	switch {
	case len(b) >= pvvxLength:
		return decodePVVX(b), nil
	case len(b) >= atcLength:
		return decodeATC(b), nil
	}
	return nil, fmt.Errorf("%w: custom format needs %d or %d bytes, got %d",
		ErrPayloadTooShort, atcLength, pvvxLength, len(b))
}

func decodeATC(b []byte) *Thermometer {
	r := &Thermometer{Format: FormatATC1441, MAC: formatMAC(b[0:6], false)}
	if raw := int16(binary.BigEndian.Uint16(b[6:8])); raw != math.MinInt16 {
		r.Temperature = models.Ptr(models.Celsius(float64(raw) / 10))
	}
	if b[8] != math.MaxUint8 {
		r.Humidity = models.Ptr(models.RelativeHumidity(b[8]))
	}
	if b[9] != math.MaxUint8 {
		r.Battery = models.Ptr(models.Percent(b[9]))
	}
	if raw := binary.BigEndian.Uint16(b[10:12]); raw != math.MaxUint16 {
		r.BatteryVoltage = models.Ptr(models.Volt(float64(raw) / 1000))
	}
	if b[12] != math.MaxUint8 {
		r.Counter = models.Ptr(b[12])
	}
	return r
}

func decodePVVX(b []byte) *Thermometer {
	r := &Thermometer{Format: FormatPVVX, MAC: formatMAC(b[0:6], true), Flags: models.Ptr(b[14])}
	if raw := int16(binary.LittleEndian.Uint16(b[6:8])); raw != math.MinInt16 {
		r.Temperature = models.Ptr(models.Celsius(float64(raw) / 100))
	}
	if raw := binary.LittleEndian.Uint16(b[8:10]); raw != math.MaxUint16 {
		r.Humidity = models.Ptr(models.RelativeHumidity(float64(raw) / 100))
	}
	if raw := binary.LittleEndian.Uint16(b[10:12]); raw != math.MaxUint16 {
		r.BatteryVoltage = models.Ptr(models.Volt(float64(raw) / 1000))
	}
	if b[12] != math.MaxUint8 {
		r.Battery = models.Ptr(models.Percent(b[12]))
	}
	if b[13] != math.MaxUint8 {
		r.Counter = models.Ptr(b[13])
	}
	return r
}
