package models

import "math"

// Physical quantities are distinct types so a CO2 concentration can never be
// passed where a VOC index or a temperature is expected.
type (
	Celsius                 float64
	RelativeHumidity        float64 // %RH
	Percent                 float64 // battery level, soil moisture
	Pascal                  float64
	Volt                    float64
	DBm                     float64
	MilliG                  float64
	PPM                     float64
	MicrogramsPerCubicMeter float64
	Lux                     float64
	MicroSiemensPerCm       float64
	GramsPerCubicMeter      float64
	Index                   float64 // unitless sensor index (VOC, NOx)
	Score                   float64 // 0..100 derived score
	AQI                     float64 // EPA air quality index, 0..500
)

// Hectopascal converts to the unit published downstream.
func (p Pascal) Hectopascal() float64 { return float64(p) / 100 }

// Fahrenheit converts to degrees Fahrenheit.
func (c Celsius) Fahrenheit() float64 { return float64(c)*9/5 + 32 }

// CelsiusFromFahrenheit converts degrees Fahrenheit back to Celsius.
func CelsiusFromFahrenheit(f float64) Celsius { return Celsius((f - 32) * 5 / 9) }

// Ptr returns a pointer to v. Optional measurements are modelled as nil-able pointers.
func Ptr[T any](v T) *T { return &v }

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	if decimals < 0 {
		return v
	}
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
