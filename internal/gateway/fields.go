package gateway

import (
	"ble-bridge/internal/calc"
	"ble-bridge/internal/decoder/ruuvi"
	"ble-bridge/internal/decoder/xiaomi"
	"ble-bridge/models"
)

func hectopascal(p *models.Pascal) *float64 {
	if p == nil {
		return nil
	}
	return models.Ptr(p.Hectopascal())
}

// climate adds the values derived from temperature and humidity.
func climate(f models.Fields, t *models.Celsius, rh *models.RelativeHumidity, p int, full bool) {
	dp := calc.DewPoint(t, rh)
	models.SetFloat(f, "dew_point", dp, p)
	models.SetFloat(f, "absolute_humidity", calc.AbsoluteHumidity(t, rh), p)
	if !full {
		return
	}
	models.SetFloat(f, "heat_index", calc.HeatIndex(t, rh), p)
	models.SetFloat(f, "humidex", calc.Humidex(t, dp), p)
	models.SetFloat(f, "comfort_index", calc.ComfortIndex(t, rh), p)
}

func environmentalFields(r *ruuvi.Environmental, p int) models.Fields {
	f := models.Fields{}
	models.SetFloat(f, "temperature", r.Temperature, p)
	models.SetFloat(f, "humidity", r.Humidity, p)
	models.SetFloat(f, "pressure", hectopascal(r.Pressure), p)
	models.SetFloat(f, "acceleration_x", r.AccelerationX, p)
	models.SetFloat(f, "acceleration_y", r.AccelerationY, p)
	models.SetFloat(f, "acceleration_z", r.AccelerationZ, p)
	models.SetFloat(f, "battery", r.Battery, p)
	models.SetFloat(f, "tx_power", r.TxPower, p)
	models.SetCount(f, "movement_counter", r.MovementCounter)
	models.SetCount(f, "measurement_sequence", r.Sequence)
	climate(f, r.Temperature, r.Humidity, p, true)
	return f
}

func airQualityFields(r *ruuvi.AirQuality, p int) models.Fields {
	f := models.Fields{}
	models.SetFloat(f, "temperature", r.Temperature, p)
	models.SetFloat(f, "humidity", r.Humidity, p)
	models.SetFloat(f, "pressure", hectopascal(r.Pressure), p)
	models.SetFloat(f, "pm1_0", r.PM1_0, p)
	models.SetFloat(f, "pm2_5", r.PM2_5, p)
	models.SetFloat(f, "pm4_0", r.PM4_0, p)
	models.SetFloat(f, "pm10_0", r.PM10_0, p)
	models.SetFloat(f, "co2", r.CO2, p)
	models.SetFloat(f, "voc", r.VOC, p)
	models.SetFloat(f, "nox", r.NOx, p)
	models.SetFloat(f, "luminosity", r.Luminosity, p)
	models.SetCount(f, "measurement_sequence", r.Sequence)
	models.SetBool(f, "calibration_in_progress", r.CalibrationInProgress)
	models.SetFloat(f, "aqi", calc.PM25AQI(r.PM2_5), p)
	models.SetFloat(f, "air_quality_score", calc.AirQualityScore(r.PM2_5, r.CO2), p)
	climate(f, r.Temperature, r.Humidity, p, false)
	return f
}

func thermometerFields(r *xiaomi.Thermometer, p int) models.Fields {
	f := models.Fields{}
	models.SetFloat(f, "temperature", r.Temperature, p)
	models.SetFloat(f, "humidity", r.Humidity, p)
	models.SetFloat(f, "battery", r.Battery, p)
	models.SetFloat(f, "battery_voltage", r.BatteryVoltage, p)
	climate(f, r.Temperature, r.Humidity, p, true)
	return f
}

func beaconThermometerFields(r xiaomi.Reading, p int) models.Fields {
	f := models.Fields{}
	models.SetFloat(f, "temperature", r.Temperature, p)
	models.SetFloat(f, "humidity", r.Humidity, p)
	models.SetFloat(f, "battery", r.Battery, p)
	climate(f, r.Temperature, r.Humidity, p, true)
	return f
}

func plantFields(r xiaomi.Reading, p int) models.Fields {
	f := models.Fields{}
	models.SetFloat(f, "temperature", r.Temperature, p)
	models.SetFloat(f, "illuminance", r.Illuminance, p)
	models.SetFloat(f, "moisture", r.Moisture, p)
	models.SetFloat(f, "conductivity", r.Conductivity, p)
	return f
}
