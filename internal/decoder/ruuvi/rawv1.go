package ruuvi

import (
	"math"

	"ble-bridge/models"
)

const rawv1Length = 14

// DecodeRAWv1 decodes data format 3.
//
//	0     format
//	1     humidity, 0.5 %RH per bit
//	2     temperature integer part, bit 7 is the sign
//	3     temperature hundredths
//	4-5   pressure, Pa - 50000
//	6-11  acceleration X, Y, Z in mG
//	12-13 battery voltage, mV
func DecodeRAWv1(b []byte) (*Environmental, error) {
	if err := checkLength(FormatRAWv1, b, rawv1Length); err != nil {
		return nil, err
	}

	r := &Environmental{Format: FormatRAWv1}

	if b[1] != 0xFF {
		r.Humidity = models.Ptr(models.RelativeHumidity(float64(b[1]) * 0.5))
	}
	if b[2] != 0xFF || b[3] != 0xFF {
		t := float64(b[2]&0x7F) + float64(b[3])/100
		if b[2]&0x80 != 0 {
			t = -t
		}
		r.Temperature = models.Ptr(models.Celsius(t))
	}
	if raw := u16(b, 4); raw != math.MaxUint16 {
		r.Pressure = models.Ptr(models.Pascal(float64(raw) + 50000))
	}
	r.AccelerationX = acceleration(b, 6)
	r.AccelerationY = acceleration(b, 8)
	r.AccelerationZ = acceleration(b, 10)
	if raw := u16(b, 12); raw != math.MaxUint16 {
		r.Battery = models.Ptr(models.Volt(float64(raw) / 1000))
	}
	return r, nil
}
