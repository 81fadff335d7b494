package gateway

import (
	"fmt"

	"ble-bridge/internal/decoder/ruuvi"
	"ble-bridge/internal/resolver"
	"ble-bridge/models"
)

// Ruuvi handles RuuviTag and Ruuvi Air advertisements. Every packet is a
// complete reading.
type Ruuvi struct {
	*base
}

func NewRuuvi(cfg Config, opts Options) (*Ruuvi, error) {
	b, err := newBase(models.FamilyRuuvi, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Ruuvi{base: b}, nil
}

func (g *Ruuvi) Handle(ad models.Advertisement, route resolver.Route) ([]models.DeviceMessage, error) {
	reading, decodeErr := ruuvi.Decode(route.Payload)

	ok, err := g.admit(ad, route.Model)
	if err != nil || !ok {
		return nil, err
	}

	entry, msgs, err := g.observe(ad, ruuviMAC(reading))
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return msgs, fmt.Errorf("decode %s %s: %w", route.RuuviFormat, entry.Device.ID, decodeErr)
	}

	model, err := g.model(entry, route.Model)
	if err != nil {
		return msgs, err
	}

	p := entry.DecimalPrecision
	switch r := reading.(type) {
	case *ruuvi.Environmental:
		msgs = append(msgs, g.sensorData(entry, model, models.SensorEnvironmental, environmentalFields(r, p)))
	case *ruuvi.AirQuality:
		msgs = append(msgs, g.sensorData(entry, model, models.SensorAirQuality, airQualityFields(r, p)))
	default:
		return msgs, fmt.Errorf("gateway: unexpected ruuvi reading %T", reading)
	}
	return msgs, nil
}

func ruuviMAC(r ruuvi.Reading) string {
	switch r := r.(type) {
	case *ruuvi.Environmental:
		return r.MAC
	case *ruuvi.AirQuality:
		return r.MAC
	}
	return ""
}
