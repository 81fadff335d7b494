// Package ruuvi decodes Ruuvi manufacturer-specific advertisement payloads.
//
// Every decoder is a pure function over the bytes following the 0x0499
// company identifier; the first byte is the data format. Fields carrying their
// "not available" bit pattern decode to nil.
package ruuvi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"ble-bridge/models"
)

// ManufacturerID is the Bluetooth SIG company identifier of Ruuvi Innovations.
const ManufacturerID uint16 = 0x0499

// Format is the protocol revision byte.
type Format byte

const (
	FormatRAWv1       Format = 0x03
	FormatRAWv2       Format = 0x05
	FormatAir         Format = 0x06
	FormatAirExtended Format = 0xE1
)

func (f Format) String() string {
	switch f {
	case FormatRAWv1:
		return "RAWv1"
	case FormatRAWv2:
		return "RAWv2"
	case FormatAir:
		return "Air"
	case FormatAirExtended:
		return "AirExtended"
	default:
		return fmt.Sprintf("0x%02X", byte(f))
	}
}

// Supported reports whether a decoder exists for f.
func (f Format) Supported() bool {
	switch f {
	case FormatRAWv1, FormatRAWv2, FormatAir, FormatAirExtended:
		return true
	}
	return false
}

// Model returns the hardware line that emits f.
func (f Format) Model() models.Model {
	switch f {
	case FormatAir, FormatAirExtended:
		return models.ModelRuuviAir
	case FormatRAWv1, FormatRAWv2:
		return models.ModelRuuviTag
	}
	return models.ModelUnknown
}

var ErrPayloadTooShort = errors.New("ruuvi: payload too short")

// UnsupportedFormatError is returned for a recognised Ruuvi payload whose
// revision byte has no decoder.
type UnsupportedFormatError struct {
	Format byte
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("ruuvi: unsupported data format 0x%02X", e.Format)
}

// Reading is either *Environmental or *AirQuality.
type Reading interface {
	DataFormat() Format
}

// Environmental is produced by RuuviTag formats RAWv1 and RAWv2.
type Environmental struct {
	Format          Format
	Temperature     *models.Celsius
	Humidity        *models.RelativeHumidity
	Pressure        *models.Pascal
	AccelerationX   *models.MilliG
	AccelerationY   *models.MilliG
	AccelerationZ   *models.MilliG
	Battery         *models.Volt
	TxPower         *models.DBm
	MovementCounter *uint8
	Sequence        *uint16
	MAC             string
}

func (r *Environmental) DataFormat() Format { return r.Format }

// AirQuality is produced by Ruuvi Air formats 0x06 and 0xE1.
type AirQuality struct {
	Format                Format
	Temperature           *models.Celsius
	Humidity              *models.RelativeHumidity
	Pressure              *models.Pascal
	PM1_0                 *models.MicrogramsPerCubicMeter
	PM2_5                 *models.MicrogramsPerCubicMeter
	PM4_0                 *models.MicrogramsPerCubicMeter
	PM10_0                *models.MicrogramsPerCubicMeter
	CO2                   *models.PPM
	VOC                   *models.Index
	NOx                   *models.Index
	Luminosity            *models.Lux
	Sequence              *uint32
	CalibrationInProgress bool
	MAC                   string // full address, only for 0xE1
	MACSuffix             string // lower three bytes, format 0x06
}

func (r *AirQuality) DataFormat() Format { return r.Format }

// Decode selects the decoder by the first byte of payload.
func Decode(payload []byte) (Reading, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrPayloadTooShort)
	}
	switch Format(payload[0]) {
	case FormatRAWv1:
		return DecodeRAWv1(payload)
	case FormatRAWv2:
		return DecodeRAWv2(payload)
	case FormatAir:
		return DecodeAir(payload)
	case FormatAirExtended:
		return DecodeAirExtended(payload)
	default:
		return nil, &UnsupportedFormatError{Format: payload[0]}
	}
}

func checkLength(f Format, b []byte, want int) error {
	if len(b) < want {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrPayloadTooShort, f, want, len(b))
	}
	return nil
}

func u16(b []byte, off int) uint16 { return binary.BigEndian.Uint16(b[off : off+2]) }

func i16(b []byte, off int) int16 { return int16(u16(b, off)) }

func u24(b []byte, off int) uint32 {
	return uint32(b[off])<<16 | uint32(b[off+1])<<8 | uint32(b[off+2])
}

// temperature decodes the shared i16 × 0.005 °C field.
func temperature(b []byte, off int) *models.Celsius {
	raw := i16(b, off)
	if raw == math.MinInt16 {
		return nil
	}
	return models.Ptr(models.Celsius(float64(raw) * 0.005))
}

// humidity decodes the shared u16 × 0.0025 %RH field.
func humidity(b []byte, off int) *models.RelativeHumidity {
	raw := u16(b, off)
	if raw == math.MaxUint16 {
		return nil
	}
	return models.Ptr(models.RelativeHumidity(float64(raw) * 0.0025))
}

// pressure decodes the shared u16 field offset by 50000 Pa.
func pressure(b []byte, off int) *models.Pascal {
	raw := u16(b, off)
	if raw == math.MaxUint16 {
		return nil
	}
	return models.Ptr(models.Pascal(float64(raw) + 50000))
}

func acceleration(b []byte, off int) *models.MilliG {
	raw := i16(b, off)
	if raw == math.MinInt16 {
		return nil
	}
	return models.Ptr(models.MilliG(raw))
}

func formatMAC(b []byte) string {
	allOnes := true
	for _, x := range b {
		if x != 0xFF {
			allOnes = false
			break
		}
	}
	if allOnes {
		return ""
	}
	out := make([]byte, 0, len(b)*3)
	const hexd = "0123456789ABCDEF"
	for i, x := range b {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, hexd[x>>4], hexd[x&0x0F])
	}
	return string(out)
}
