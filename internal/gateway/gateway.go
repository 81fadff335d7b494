// Package gateway binds, per sensor family, a registry with the decoders,
// coalescing buffer and duplicate-format suppressor that family needs.
package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ble-bridge/internal/registry"
	"ble-bridge/internal/resolver"
	"ble-bridge/models"
)

var (
	ErrUnknownModel  = errors.New("gateway: no model configured or inferred")
	ErrNoServiceData = errors.New("gateway: advertisement carries no decodable service data")
)

// Gateway handles the advertisements routed to one family.
type Gateway interface {
	Family() models.Family
	// Handle returns the messages produced for ad in emission order. A
	// non-nil error may come with messages that were already due, such as an
	// availability change recorded before decoding failed.
	Handle(ad models.Advertisement, route resolver.Route) ([]models.DeviceMessage, error)
	// Sweep transitions stale devices offline.
	Sweep() []models.DeviceMessage
	Registry() *registry.Registry
}

// Config is the validated configuration of one family.
type Config struct {
	AllowUnknown     bool
	Timeout          time.Duration
	DecimalPrecision int
	Devices          []models.Device
}

// Options carries collaborators shared by all gateways.
type Options struct {
	Now   func() time.Time
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// base is the registry half every family shares.
type base struct {
	family       models.Family
	allowUnknown bool
	reg          *registry.Registry
	opts         Options
	onRegister   func(id string)
}

func newBase(family models.Family, cfg Config, opts Options) (*base, error) {
	opts = opts.withDefaults()
	reg, err := registry.New(registry.Options{
		Family:           family,
		DefaultTimeout:   cfg.Timeout,
		DecimalPrecision: cfg.DecimalPrecision,
		Devices:          cfg.Devices,
		Now:              opts.Now,
	})
	if err != nil {
		return nil, err
	}
	return &base{family: family, allowUnknown: cfg.AllowUnknown, reg: reg, opts: opts}, nil
}

func (b *base) Family() models.Family        { return b.family }
func (b *base) Registry() *registry.Registry { return b.reg }

// admit reports whether ad belongs to a device this gateway tracks,
// registering unknown devices when allowed.
func (b *base) admit(ad models.Advertisement, model models.Model) (bool, error) {
	if b.reg.Has(ad.Address) {
		return true, nil
	}
	if !b.allowUnknown {
		return false, nil
	}
	entry, err := b.reg.RegisterUnknown(ad, model)
	if errors.Is(err, registry.ErrDeviceExists) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if b.onRegister != nil {
		b.onRegister(entry.Device.ID)
	}
	return true, nil
}

// observe marks the device seen and returns the availability message that
// is due, if any.
func (b *base) observe(ad models.Advertisement, mac string) (registry.Entry, []models.DeviceMessage, error) {
	entry, announce, err := b.reg.Observe(ad, mac)
	if err != nil {
		return registry.Entry{}, nil, err
	}
	if !announce {
		return entry, nil, nil
	}
	return entry, []models.DeviceMessage{b.availability(entry)}, nil
}

// model picks the declared model over the inferred one.
func (b *base) model(entry registry.Entry, inferred models.Model) (models.Model, error) {
	m := entry.Device.Model
	if m == models.ModelUnknown {
		m = inferred
	}
	if m == models.ModelUnknown || !b.family.Supports(m) {
		return models.ModelUnknown, fmt.Errorf("%w: %s %s", ErrUnknownModel, b.family, entry.Device.ID)
	}
	return m, nil
}

func (b *base) envelope(entry registry.Entry, model models.Model) models.Envelope {
	d := entry.Descriptor()
	if model != models.ModelUnknown {
		d.Model = model
	}
	return models.Envelope{ID: b.opts.NewID(), Device: d, Timestamp: b.opts.Now()}
}

func (b *base) availability(entry registry.Entry) *models.AvailabilityMessage {
	return &models.AvailabilityMessage{
		Envelope: b.envelope(entry, models.ModelUnknown),
		State:    entry.Availability,
	}
}

func (b *base) sensorData(entry registry.Entry, model models.Model, kind models.SensorKind, fields models.Fields) *models.SensorData {
	return &models.SensorData{Envelope: b.envelope(entry, model), Kind: kind, Fields: fields}
}

func (b *base) Sweep() []models.DeviceMessage {
	expired := b.reg.ExpireStale()
	if len(expired) == 0 {
		return nil
	}
	out := make([]models.DeviceMessage, 0, len(expired))
	for _, e := range expired {
		out = append(out, b.availability(e))
	}
	return out
}

// New builds the gateway of family.
func New(family models.Family, cfg Config, opts Options) (Gateway, error) {
	var (
		g   Gateway
		err error
	)
	switch family {
	case models.FamilyRuuvi:
		g, err = NewRuuvi(cfg, opts)
	case models.FamilyXiaomi:
		g, err = NewXiaomi(cfg, opts)
	default:
		return nil, fmt.Errorf("gateway: unsupported family %q", family)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}
