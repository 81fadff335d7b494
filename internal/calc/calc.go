// Package calc derives secondary values from decoded measurements. Every
// function returns nil when a required input is nil or outside the domain of
// its formula.
package calc

import (
	"math"

	"ble-bridge/models"
)

// Magnus coefficients for dew point over water.
const (
	magnusA = 17.62
	magnusB = 243.12
)

// DewPoint uses the Magnus formula.
func DewPoint(t *models.Celsius, rh *models.RelativeHumidity) *models.Celsius {
	if t == nil || rh == nil || *rh <= 0 {
		return nil
	}
	tc := float64(*t)
	gamma := math.Log(float64(*rh)/100) + magnusA*tc/(magnusB+tc)
	return models.Ptr(models.Celsius(magnusB * gamma / (magnusA - gamma)))
}

// HeatIndex evaluates the Rothfusz regression in Fahrenheit and converts
// the result back.
func HeatIndex(t *models.Celsius, rh *models.RelativeHumidity) *models.Celsius {
	if t == nil || rh == nil {
		return nil
	}
	f := t.Fahrenheit()
	r := float64(*rh)
	hi := -42.379 +
		2.04901523*f +
		10.14333127*r -
		0.22475541*f*r -
		0.00683783*f*f -
		0.05481717*r*r +
		0.00122874*f*f*r +
		0.00085282*f*r*r -
		0.00000199*f*f*r*r
	return models.Ptr(models.CelsiusFromFahrenheit(hi))
}

// Humidex combines air temperature with vapour pressure at the dew point.
func Humidex(t, dewPoint *models.Celsius) *models.Celsius {
	if t == nil || dewPoint == nil {
		return nil
	}
	e := 6.11 * math.Exp(5417.7530*(1/273.16-1/(273.15+float64(*dewPoint))))
	return models.Ptr(models.Celsius(float64(*t) + 0.5555*(e-10)))
}

// AbsoluteHumidity uses the Magnus-Tetens saturation vapour pressure.
func AbsoluteHumidity(t *models.Celsius, rh *models.RelativeHumidity) *models.GramsPerCubicMeter {
	if t == nil || rh == nil {
		return nil
	}
	tc := float64(*t)
	v := 6.112 * math.Exp(17.67*tc/(tc+243.5)) * float64(*rh) * 2.1674 / (273.15 + tc)
	return models.Ptr(models.GramsPerCubicMeter(v))
}
