package gateway

import (
	"fmt"
	"time"

	"ble-bridge/internal/buffer"
	"ble-bridge/internal/decoder/xiaomi"
	"ble-bridge/internal/dedup"
	"ble-bridge/internal/resolver"
	"ble-bridge/models"
)

// PlantRetention bounds how long partial plant readings wait for the
// missing kinds.
const PlantRetention = 60 * time.Second

// Xiaomi handles LYWSD03MMC thermometers and HHCCJCY01 plant sensors. Plant
// readings are coalesced from four frames; thermometer MiBeacon frames are
// dropped while the same device broadcasts the custom format.
type Xiaomi struct {
	*base
	plants     *buffer.Buffer[xiaomi.Kind, xiaomi.Reading]
	suppressor *dedup.Suppressor
}

func NewXiaomi(cfg Config, opts Options) (*Xiaomi, error) {
	b, err := newBase(models.FamilyXiaomi, cfg, opts)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		ids = append(ids, d.ID)
	}
	g := &Xiaomi{
		base:       b,
		plants:     buffer.New[xiaomi.Kind, xiaomi.Reading](xiaomi.PlantKinds, PlantRetention, ids, b.opts.Now),
		suppressor: dedup.New(dedup.DefaultTTL, b.opts.Now),
	}
	b.onRegister = g.plants.Register
	return g, nil
}

func (g *Xiaomi) Handle(ad models.Advertisement, route resolver.Route) ([]models.DeviceMessage, error) {
	custom, hasCustom := ad.ServiceDataFor(models.ServiceEnvironmentalSensor)
	beaconData, hasBeacon := ad.ServiceDataFor(models.ServiceMiBeacon)
	if !hasCustom && hasBeacon && g.suppressor.Suppressed(ad.Address) {
		return nil, nil
	}

	var (
		thermo    *xiaomi.Thermometer
		beacon    *xiaomi.MiBeacon
		decodeErr error
		mac       string
	)
	switch {
	case hasCustom:
		if thermo, decodeErr = xiaomi.DecodeCustom(custom); decodeErr == nil {
			mac = thermo.MAC
		}
	case hasBeacon:
		if beacon, decodeErr = xiaomi.DecodeMiBeacon(beaconData); decodeErr == nil {
			mac = beacon.MAC
		}
	default:
		decodeErr = ErrNoServiceData
	}

	inferred := route.Model
	if inferred == models.ModelUnknown && beacon != nil {
		inferred = beacon.Model()
	}

	ok, err := g.admit(ad, inferred)
	if err != nil || !ok {
		return nil, err
	}
	entry, msgs, err := g.observe(ad, mac)
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return msgs, fmt.Errorf("decode %s: %w", entry.Device.ID, decodeErr)
	}
	if thermo != nil {
		g.suppressor.MarkSuperseding(entry.Device.ID)
	}

	model, err := g.model(entry, inferred)
	if err != nil {
		return msgs, err
	}

	p := entry.DecimalPrecision
	switch model {
	case models.ModelLYWSD03MMC:
		var fields models.Fields
		if thermo != nil {
			fields = thermometerFields(thermo, p)
		} else {
			fields = beaconThermometerFields(beacon.Reading, p)
		}
		if len(fields) > 0 {
			msgs = append(msgs, g.sensorData(entry, model, models.SensorEnvironmental, fields))
		}
	case models.ModelHHCCJCY01:
		if beacon == nil {
			return msgs, fmt.Errorf("gateway: %s sent a custom-format frame", model)
		}
		released, err := g.coalesce(entry.Device.ID, beacon.Reading)
		if err != nil {
			return msgs, err
		}
		for _, r := range released {
			msgs = append(msgs, g.sensorData(entry, model, models.SensorPlant, plantFields(r, p)))
		}
	}
	return msgs, nil
}

// coalesce buffers the plant kinds carried by r and returns the readings
// released by it.
func (g *Xiaomi) coalesce(id string, r xiaomi.Reading) ([]xiaomi.Reading, error) {
	var out []xiaomi.Reading
	for _, k := range r.Kinds() {
		if !isPlantKind(k) {
			continue
		}
		released, ready, err := g.plants.Put(id, k, r.Only(k))
		if err != nil {
			return out, err
		}
		if !ready {
			continue
		}
		var merged xiaomi.Reading
		for _, part := range released {
			merged.Merge(part)
		}
		out = append(out, merged)
	}
	return out, nil
}

func isPlantKind(k xiaomi.Kind) bool {
	for _, p := range xiaomi.PlantKinds {
		if p == k {
			return true
		}
	}
	return false
}
