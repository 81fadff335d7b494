package calc

import (
	"math"

	"ble-bridge/models"
)

type breakpoint struct {
	cLow, cHigh float64
	iLow, iHigh float64
}

// EPA PM2.5 breakpoints (2024 revision), µg/m³ truncated to 0.1.
var pm25Breakpoints = []breakpoint{
	{0.0, 9.0, 0, 50},
	{9.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 125.4, 151, 200},
	{125.5, 225.4, 201, 300},
	{225.5, 325.4, 301, 500},
}

// PM25AQI is the EPA air quality index for a PM2.5 concentration. Values
// above the last breakpoint saturate at 500.
func PM25AQI(pm *models.MicrogramsPerCubicMeter) *models.AQI {
	if pm == nil || *pm < 0 {
		return nil
	}
	c := math.Floor(float64(*pm)*10) / 10
	for _, bp := range pm25Breakpoints {
		if c <= bp.cHigh {
			i := (bp.iHigh-bp.iLow)/(bp.cHigh-bp.cLow)*(c-bp.cLow) + bp.iLow
			return models.Ptr(models.AQI(math.Round(i)))
		}
	}
	return models.Ptr(models.AQI(500))
}

// Scaling ranges of the air quality score.
const (
	scorePMMax   = 60.0
	scoreCO2Min  = 420.0
	scoreCO2Max  = 2300.0
	scoreMaximum = 100.0
)

// AirQualityScore places PM2.5 and CO2 on a 0..100 plane each and scores
// the Euclidean distance from the ideal corner: 100 is clean air.
func AirQualityScore(pm *models.MicrogramsPerCubicMeter, co2 *models.PPM) *models.Score {
	if pm == nil || co2 == nil {
		return nil
	}
	p := clamp(float64(*pm)/scorePMMax*scoreMaximum, 0, scoreMaximum)
	c := clamp((float64(*co2)-scoreCO2Min)/(scoreCO2Max-scoreCO2Min)*scoreMaximum, 0, scoreMaximum)
	return models.Ptr(models.Score(clamp(scoreMaximum-math.Hypot(p, c), 0, scoreMaximum)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
