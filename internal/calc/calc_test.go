package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ble-bridge/models"
)

func celsius(v float64) *models.Celsius     { return models.Ptr(models.Celsius(v)) }
func rh(v float64) *models.RelativeHumidity { return models.Ptr(models.RelativeHumidity(v)) }
func pm(v float64) *models.MicrogramsPerCubicMeter {
	return models.Ptr(models.MicrogramsPerCubicMeter(v))
}
func ppm(v float64) *models.PPM { return models.Ptr(models.PPM(v)) }

func TestNilInputs(t *testing.T) {
	assert.Nil(t, DewPoint(nil, rh(50)))
	assert.Nil(t, DewPoint(celsius(20), nil))
	assert.Nil(t, DewPoint(celsius(20), rh(0)))
	assert.Nil(t, HeatIndex(celsius(20), nil))
	assert.Nil(t, Humidex(nil, celsius(10)))
	assert.Nil(t, AbsoluteHumidity(nil, rh(50)))
	assert.Nil(t, PM25AQI(nil))
	assert.Nil(t, PM25AQI(pm(-1)))
	assert.Nil(t, AirQualityScore(pm(5), nil))
	assert.Nil(t, AirQualityScore(nil, ppm(500)))
	assert.Nil(t, ComfortIndex(celsius(20), nil))
}

func TestDewPoint(t *testing.T) {
	assert.InDelta(t, 9.2552, float64(*DewPoint(celsius(20), rh(50))), 1e-3)
	assert.InDelta(t, 14.2476, float64(*DewPoint(celsius(24.3), rh(53.49))), 1e-3)
	assert.InDelta(t, 20.0, float64(*DewPoint(celsius(20), rh(100))), 1e-6)
}

func TestHeatIndex(t *testing.T) {
	assert.InDelta(t, 35.038, float64(*HeatIndex(celsius(30), rh(70))), 1e-3)
	assert.InDelta(t, 25.5216, float64(*HeatIndex(celsius(24.3), rh(53.49))), 1e-3)
}

func TestHumidex(t *testing.T) {
	dp := DewPoint(celsius(30), rh(70))
	require.NotNil(t, dp)
	assert.InDelta(t, 41.202, float64(*Humidex(celsius(30), dp)), 1e-3)
}

func TestAbsoluteHumidity(t *testing.T) {
	assert.InDelta(t, 8.6391, float64(*AbsoluteHumidity(celsius(20), rh(50))), 1e-3)
	assert.InDelta(t, 11.839, float64(*AbsoluteHumidity(celsius(24.3), rh(53.49))), 1e-3)
}

func TestPM25AQI(t *testing.T) {
	tests := []struct {
		pm   float64
		want models.AQI
	}{
		{0, 0},
		{9.0, 50},
		{9.05, 50},
		{9.1, 51},
		{11.2, 55},
		{35.4, 100},
		{35.5, 101},
		{55.4, 150},
		{125.4, 200},
		{225.5, 301},
		{325.4, 500},
		{600, 500},
	}
	for _, tt := range tests {
		got := PM25AQI(pm(tt.pm))
		require.NotNil(t, got)
		assert.Equal(t, tt.want, *got, "pm2.5 %v", tt.pm)
	}
}

func TestAirQualityScore(t *testing.T) {
	assert.InDelta(t, 100, float64(*AirQualityScore(pm(0), ppm(420))), 1e-9)
	assert.InDelta(t, 100, float64(*AirQualityScore(pm(0), ppm(300))), 1e-9, "below the CO2 floor clamps")
	assert.InDelta(t, 0, float64(*AirQualityScore(pm(60), ppm(2300))), 1e-9)
	assert.InDelta(t, 29.2893, float64(*AirQualityScore(pm(30), ppm(1360))), 1e-3)
	assert.InDelta(t, 77.9686, float64(*AirQualityScore(pm(11.2), ppm(640))), 1e-3)
}

func TestComfortIndex(t *testing.T) {
	tests := []struct {
		name string
		t    float64
		rh   float64
		want float64
	}{
		{"grid point", 20, 40, 95},
		{"cell centre", 22.5, 50, 93.75},
		{"on temperature edge", 25, 70, 77.5},
		{"clamped low", -5, -10, 20},
		{"clamped high", 45, 120, 5},
		{"upper corner", 35, 100, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComfortIndex(celsius(tt.t), rh(tt.rh))
			require.NotNil(t, got)
			assert.InDelta(t, tt.want, float64(*got), 1e-9)
		})
	}
}
