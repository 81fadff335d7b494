package ruuvi

import (
	"math"

	"ble-bridge/models"
)

const (
	airLength         = 20
	airExtendedLength = 40

	indexInvalid      = 511
	luminosityInvalid = 255
	u24Invalid        = 0xFFFFFF

	flagCalibration = 1 << 0
	flagVOCLSB      = 6
	flagNOxLSB      = 7
)

var luminosityStep = math.Log(65536) / 254

// DecodeAir decodes data format 6.
//
//	0     format
//	1-2   temperature, 0.005 °C
//	3-4   humidity, 0.0025 %RH
//	5-6   pressure, Pa - 50000
//	7-8   PM2.5, 0.1 µg/m³
//	9-10  CO2, ppm
//	11    VOC index, bits 8..1
//	12    NOx index, bits 8..1
//	13    luminosity, logarithmic code
//	14    reserved
//	15    measurement sequence, lowest 8 bits
//	16    flags: bit 0 calibration, bit 6 VOC bit 0, bit 7 NOx bit 0
//	17-19 lower three bytes of the MAC address
func DecodeAir(b []byte) (*AirQuality, error) {
	if err := checkLength(FormatAir, b, airLength); err != nil {
		return nil, err
	}

	flags := b[16]
	r := &AirQuality{
		Format:                FormatAir,
		Temperature:           temperature(b, 1),
		Humidity:              humidity(b, 3),
		Pressure:              pressure(b, 5),
		PM2_5:                 particulate(b, 7),
		CO2:                   co2(b, 9),
		VOC:                   index9(b[11], flags, flagVOCLSB),
		NOx:                   index9(b[12], flags, flagNOxLSB),
		Luminosity:            LogLuminosity(b[13]),
		CalibrationInProgress: flags&flagCalibration != 0,
		MACSuffix:             formatMAC(b[17:20]),
	}
	if b[15] != math.MaxUint8 {
		r.Sequence = models.Ptr(uint32(b[15]))
	}
	return r, nil
}

// DecodeAirExtended decodes data format 0xE1.
//
//	0     format
//	1-6   temperature, humidity, pressure as in format 5
//	7-14  PM1.0, PM2.5, PM4.0, PM10.0, 0.1 µg/m³
//	15-16 CO2, ppm
//	17    VOC index, bits 8..1
//	18    NOx index, bits 8..1
//	19-21 luminosity, 0.01 lux
//	22-24 reserved
//	25-27 measurement sequence
//	28    flags: bit 0 calibration, bit 6 VOC bit 0, bit 7 NOx bit 0
//	29-33 reserved
//	34-39 MAC address
func DecodeAirExtended(b []byte) (*AirQuality, error) {
	if err := checkLength(FormatAirExtended, b, airExtendedLength); err != nil {
		return nil, err
	}

	flags := b[28]
	r := &AirQuality{
		Format:                FormatAirExtended,
		Temperature:           temperature(b, 1),
		Humidity:              humidity(b, 3),
		Pressure:              pressure(b, 5),
		PM1_0:                 particulate(b, 7),
		PM2_5:                 particulate(b, 9),
		PM4_0:                 particulate(b, 11),
		PM10_0:                particulate(b, 13),
		CO2:                   co2(b, 15),
		VOC:                   index9(b[17], flags, flagVOCLSB),
		NOx:                   index9(b[18], flags, flagNOxLSB),
		CalibrationInProgress: flags&flagCalibration != 0,
		MAC:                   formatMAC(b[34:40]),
	}
	if raw := u24(b, 19); raw != u24Invalid {
		r.Luminosity = models.Ptr(models.Lux(float64(raw) / 100))
	}
	if seq := u24(b, 25); seq != u24Invalid {
		r.Sequence = models.Ptr(seq)
	}
	return r, nil
}

// LogLuminosity maps the one-byte logarithmic luminosity code to lux:
// exp(code·ln(65536)/254) − 1, rounded to two decimals.
func LogLuminosity(code byte) *models.Lux {
	switch code {
	case luminosityInvalid:
		return nil
	case 0:
		return models.Ptr(models.Lux(0))
	}
	v := math.Exp(float64(code)*luminosityStep) - 1
	return models.Ptr(models.Lux(math.Round(v*100) / 100))
}

func particulate(b []byte, off int) *models.MicrogramsPerCubicMeter {
	raw := u16(b, off)
	if raw == math.MaxUint16 {
		return nil
	}
	return models.Ptr(models.MicrogramsPerCubicMeter(float64(raw) / 10))
}

func co2(b []byte, off int) *models.PPM {
	raw := u16(b, off)
	if raw == math.MaxUint16 {
		return nil
	}
	return models.Ptr(models.PPM(raw))
}

// index9 joins the upper eight bits from hi with bit lsbBit of flags.
func index9(hi, flags byte, lsbBit uint) *models.Index {
	raw := uint16(hi)<<1 | uint16(flags>>lsbBit)&1
	if raw == indexInvalid {
		return nil
	}
	return models.Ptr(models.Index(raw))
}
