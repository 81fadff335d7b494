package xiaomi

import (
	"encoding/binary"
	"fmt"
	"math"

	"ble-bridge/models"
)

// Frame control bits.
const (
	frameEncrypted  = 1 << 3
	frameMAC        = 1 << 4
	frameCapability = 1 << 5
	frameObject     = 1 << 6

	capabilityIO = 1 << 5
)

// maxUint24 marks an unavailable illuminance value.
const maxUint24 = 1<<24 - 1

// ObjectType identifies the measurement carried by a MiBeacon frame.
type ObjectType uint16

const (
	ObjectTemperature         ObjectType = 0x1004
	ObjectHumidity            ObjectType = 0x1006
	ObjectIlluminance         ObjectType = 0x1007
	ObjectMoisture            ObjectType = 0x1008
	ObjectConductivity        ObjectType = 0x1009
	ObjectBattery             ObjectType = 0x100A
	ObjectTemperatureHumidity ObjectType = 0x100D
)

// Kind is one partial-measurement slot. The plant sensor reports each kind
// in its own frame.
type Kind string

const (
	KindTemperature  Kind = "temperature"
	KindHumidity     Kind = "humidity"
	KindIlluminance  Kind = "illuminance"
	KindMoisture     Kind = "moisture"
	KindConductivity Kind = "conductivity"
	KindBattery      Kind = "battery"
)

// PlantKinds are the slots a complete plant-sensor reading is made of.
var PlantKinds = []Kind{KindTemperature, KindIlluminance, KindMoisture, KindConductivity}

// Reading holds whatever one MiBeacon object carried; unset fields are nil.
type Reading struct {
	Temperature  *models.Celsius
	Humidity     *models.RelativeHumidity
	Illuminance  *models.Lux
	Moisture     *models.Percent
	Conductivity *models.MicroSiemensPerCm
	Battery      *models.Percent
}

// Kinds lists the populated slots of r.
func (r Reading) Kinds() []Kind {
	var out []Kind
	if r.Temperature != nil {
		out = append(out, KindTemperature)
	}
	if r.Humidity != nil {
		out = append(out, KindHumidity)
	}
	if r.Illuminance != nil {
		out = append(out, KindIlluminance)
	}
	if r.Moisture != nil {
		out = append(out, KindMoisture)
	}
	if r.Conductivity != nil {
		out = append(out, KindConductivity)
	}
	if r.Battery != nil {
		out = append(out, KindBattery)
	}
	return out
}

// Only returns a Reading holding just the k field of r.
func (r Reading) Only(k Kind) Reading {
	var out Reading
	switch k {
	case KindTemperature:
		out.Temperature = r.Temperature
	case KindHumidity:
		out.Humidity = r.Humidity
	case KindIlluminance:
		out.Illuminance = r.Illuminance
	case KindMoisture:
		out.Moisture = r.Moisture
	case KindConductivity:
		out.Conductivity = r.Conductivity
	case KindBattery:
		out.Battery = r.Battery
	}
	return out
}

// Merge overlays the populated fields of other onto r.
func (r *Reading) Merge(other Reading) {
	if other.Temperature != nil {
		r.Temperature = other.Temperature
	}
	if other.Humidity != nil {
		r.Humidity = other.Humidity
	}
	if other.Illuminance != nil {
		r.Illuminance = other.Illuminance
	}
	if other.Moisture != nil {
		r.Moisture = other.Moisture
	}
	if other.Conductivity != nil {
		r.Conductivity = other.Conductivity
	}
	if other.Battery != nil {
		r.Battery = other.Battery
	}
}

// MiBeacon is one decoded 0xFE95 frame.
type MiBeacon struct {
	FrameControl uint16
	ProductID    uint16
	Counter      uint8
	MAC          string
	Object       ObjectType
	Reading      Reading
}

// Model infers the hardware model from the product id.
func (f *MiBeacon) Model() models.Model { return ProductModel(f.ProductID) }

// DecodeMiBeacon decodes 0xFE95 service data.
//
//	0-1   frame control, LE
//	2-3   product id, LE
//	4     frame counter
//	      MAC, 6 bytes reversed, when frame control bit 4 is set
//	      capability byte when bit 5 is set, plus 2 IO bytes when capability bit 5 is set
//	      object when bit 6 is set: type u16 LE, length u8, data
func DecodeMiBeacon(b []byte) (*MiBeacon, error) {
	if len(b) < 5 {
		return nil, fmt.Errorf("%w: MiBeacon header needs 5 bytes, got %d", ErrPayloadTooShort, len(b))
	}
	f := &MiBeacon{
		FrameControl: binary.LittleEndian.Uint16(b[0:2]),
		ProductID:    binary.LittleEndian.Uint16(b[2:4]),
		Counter:      b[4],
	}
	if f.FrameControl&frameEncrypted != 0 {
		return nil, ErrEncrypted
	}

	off := 5
	if f.FrameControl&frameMAC != 0 {
		if len(b) < off+6 {
			return nil, fmt.Errorf("%w: MiBeacon MAC truncated", ErrPayloadTooShort)
		}
		f.MAC = formatMAC(b[off:off+6], true)
		off += 6
	}
	if f.FrameControl&frameCapability != 0 {
		if len(b) < off+1 {
			return nil, fmt.Errorf("%w: MiBeacon capability truncated", ErrPayloadTooShort)
		}
		capability := b[off]
		off++
		if capability&capabilityIO != 0 {
			off += 2
		}
	}
	if f.FrameControl&frameObject == 0 {
		return nil, ErrNoObject
	}
	if len(b) < off+3 {
		return nil, fmt.Errorf("%w: MiBeacon object header truncated", ErrPayloadTooShort)
	}
	f.Object = ObjectType(binary.LittleEndian.Uint16(b[off : off+2]))
	size := int(b[off+2])
	off += 3
	if len(b) < off+size {
		return nil, fmt.Errorf("%w: MiBeacon object 0x%04X needs %d bytes, got %d",
			ErrPayloadTooShort, uint16(f.Object), size, len(b)-off)
	}

	r, err := decodeObject(f.Object, b[off:off+size])
	if err != nil {
		return nil, err
	}
	f.Reading = r
	return f, nil
}

func decodeObject(t ObjectType, d []byte) (Reading, error) {
	var r Reading
	need := func(n int) error {
		if len(d) < n {
			return fmt.Errorf("%w: MiBeacon object 0x%04X needs %d data bytes, got %d",
				ErrPayloadTooShort, uint16(t), n, len(d))
		}
		return nil
	}

	switch t {
	case ObjectTemperature:
		if err := need(2); err != nil {
			return r, err
		}
		r.Temperature = tenthsCelsius(d)
	case ObjectHumidity:
		if err := need(2); err != nil {
			return r, err
		}
		r.Humidity = tenthsPercent(d)
	case ObjectIlluminance:
		if err := need(3); err != nil {
			return r, err
		}
		if lux := uint32(d[0]) | uint32(d[1])<<8 | uint32(d[2])<<16; lux != maxUint24 {
			r.Illuminance = models.Ptr(models.Lux(lux))
		}
	case ObjectMoisture:
		if err := need(1); err != nil {
			return r, err
		}
		if d[0] != math.MaxUint8 {
			r.Moisture = models.Ptr(models.Percent(d[0]))
		}
	case ObjectConductivity:
		if err := need(2); err != nil {
			return r, err
		}
		if raw := binary.LittleEndian.Uint16(d); raw != math.MaxUint16 {
			r.Conductivity = models.Ptr(models.MicroSiemensPerCm(raw))
		}
	case ObjectBattery:
		if err := need(1); err != nil {
			return r, err
		}
		if d[0] != math.MaxUint8 {
			r.Battery = models.Ptr(models.Percent(d[0]))
		}
	case ObjectTemperatureHumidity:
		if err := need(4); err != nil {
			return r, err
		}
		r.Temperature = tenthsCelsius(d[0:2])
		r.Humidity = tenthsPercent(d[2:4])
	default:
		return r, &UnsupportedObjectError{Type: uint16(t)}
	}
	return r, nil
}

// tenthsCelsius decodes an i16 in 0.1 °C; MinInt16 means unavailable.
func tenthsCelsius(d []byte) *models.Celsius {
	raw := int16(binary.LittleEndian.Uint16(d))
	if raw == math.MinInt16 {
		return nil
	}
	return models.Ptr(models.Celsius(float64(raw) / 10))
}

// tenthsPercent decodes a u16 in 0.1 %RH; MaxUint16 means unavailable.
func tenthsPercent(d []byte) *models.RelativeHumidity {
	raw := binary.LittleEndian.Uint16(d)
	if raw == math.MaxUint16 {
		return nil
	}
	return models.Ptr(models.RelativeHumidity(float64(raw) / 10))
}
