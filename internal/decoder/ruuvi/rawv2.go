package ruuvi

import (
	"math"

	"ble-bridge/models"
)

const (
	rawv2Length = 24

	batteryInvalid = 2047
	txPowerInvalid = 31
)

// DecodeRAWv2 decodes data format 5.
//
//	0     format
//	1-2   temperature, 0.005 °C
//	3-4   humidity, 0.0025 %RH
//	5-6   pressure, Pa - 50000
//	7-12  acceleration X, Y, Z in mG
//	13-14 power info: 11 bits battery (mV above 1600), 5 bits TX power (2 dBm above -40)
//	15    movement counter
//	16-17 measurement sequence number
//	18-23 MAC address
func DecodeRAWv2(b []byte) (*Environmental, error) {
	if err := checkLength(FormatRAWv2, b, rawv2Length); err != nil {
		return nil, err
	}

	r := &Environmental{
		Format:        FormatRAWv2,
		Temperature:   temperature(b, 1),
		Humidity:      humidity(b, 3),
		Pressure:      pressure(b, 5),
		AccelerationX: acceleration(b, 7),
		AccelerationY: acceleration(b, 9),
		AccelerationZ: acceleration(b, 11),
		MAC:           formatMAC(b[18:24]),
	}

	power := u16(b, 13)
	if battery := power >> 5; battery != batteryInvalid {
		r.Battery = models.Ptr(models.Volt(float64(battery+1600) / 1000))
	}
	if tx := power & 0x1F; tx != txPowerInvalid {
		r.TxPower = models.Ptr(models.DBm(float64(tx)*2 - 40))
	}
	if b[15] != math.MaxUint8 {
		r.MovementCounter = models.Ptr(b[15])
	}
	if seq := u16(b, 16); seq != math.MaxUint16 {
		r.Sequence = models.Ptr(seq)
	}
	return r, nil
}
