// Package registry tracks liveness and availability of the devices of one
// sensor family.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ble-bridge/models"
)

var (
	ErrDeviceNotFound = errors.New("registry: device not found")
	ErrDeviceExists   = errors.New("registry: device already registered")
)

// Entry is one device's registry state. Values handed out by the registry
// are copies.
type Entry struct {
	Device           models.Device
	LastSeen         *time.Time
	Availability     models.Availability
	LastPublished    models.Availability
	Timeout          time.Duration
	DecimalPrecision int
	MAC              string
	RSSI             *int16
}

// ShouldBroadcastAvailability reports whether the availability state has
// changed since it was last emitted.
func ShouldBroadcastAvailability(e Entry) bool {
	return e.Availability != e.LastPublished
}

// Descriptor is the device block attached to messages about e.
func (e Entry) Descriptor() models.DeviceDescriptor {
	return models.DeviceDescriptor{
		ID:      e.Device.ID,
		Name:    e.Device.Name,
		Family:  e.Device.Family,
		Model:   e.Device.Model,
		MAC:     e.MAC,
		RSSI:    e.RSSI,
		Timeout: e.Timeout,
	}
}

// Options configures one family's registry.
type Options struct {
	Family           models.Family
	DefaultTimeout   time.Duration
	DecimalPrecision int
	Devices          []models.Device
	// Now defaults to time.Now.
	Now func() time.Time
}

// Registry holds the entries of one family behind a single mutex; every
// mutation of an entry is serialized through it.
type Registry struct {
	mu      sync.Mutex
	family  models.Family
	timeout time.Duration
	decimal int
	entries map[string]*Entry
	now     func() time.Time
}

// New creates entries for every configured device. All start offline with
// nothing published.
func New(opts Options) (*Registry, error) {
	if opts.DefaultTimeout <= 0 {
		return nil, fmt.Errorf("registry %s: default timeout must be positive", opts.Family)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	r := &Registry{
		family:  opts.Family,
		timeout: opts.DefaultTimeout,
		decimal: opts.DecimalPrecision,
		entries: make(map[string]*Entry, len(opts.Devices)),
		now:     now,
	}
	for _, d := range opts.Devices {
		d.ID = models.NormalizeID(d.ID)
		if _, dup := r.entries[d.ID]; dup {
			return nil, fmt.Errorf("registry %s: %w: %s", opts.Family, ErrDeviceExists, d.ID)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		d.Family = opts.Family
		r.entries[d.ID] = r.newEntry(d)
	}
	return r, nil
}

func (r *Registry) newEntry(d models.Device) *Entry {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	return &Entry{
		Device:           d,
		Availability:     models.Offline,
		LastPublished:    models.Offline,
		Timeout:          timeout,
		DecimalPrecision: r.decimal,
	}
}

func (r *Registry) Family() models.Family { return r.family }

func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[models.NormalizeID(id)]
	return ok
}

func (r *Registry) Get(id string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[models.NormalizeID(id)]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return copyEntry(e), nil
}

// RegisterUnknown creates an entry for an unconfigured device using the
// advertisement address as both id and name.
func (r *Registry) RegisterUnknown(ad models.Advertisement, model models.Model) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := models.NormalizeID(ad.Address)
	if _, ok := r.entries[id]; ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrDeviceExists, id)
	}
	e := r.newEntry(models.Device{ID: id, Name: id, Family: r.family, Model: model})
	r.entries[id] = e
	return copyEntry(e), nil
}

// MarkSeen sets the entry online and stamps lastSeen. Unknown ids are ignored.
func (r *Registry) MarkSeen(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[models.NormalizeID(id)]; ok {
		r.markSeen(e)
	}
}

func (r *Registry) markSeen(e *Entry) {
	now := r.now()
	e.LastSeen = &now
	e.Availability = models.Online
}

// MarkPublished records that the current availability has been emitted.
func (r *Registry) MarkPublished(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[models.NormalizeID(id)]; ok {
		e.LastPublished = e.Availability
	}
}

// Observe is the advertisement path as one atomic step: mark the device
// seen, record its signal, and report whether an availability message is due.
// When announce is true the new state is already marked published.
func (r *Registry) Observe(ad models.Advertisement, mac string) (entry Entry, announce bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[models.NormalizeID(ad.Address)]
	if !ok {
		return Entry{}, false, fmt.Errorf("%w: %s", ErrDeviceNotFound, ad.Address)
	}
	r.markSeen(e)
	rssi := ad.RSSI
	e.RSSI = &rssi
	if mac != "" {
		e.MAC = mac
	}
	if ShouldBroadcastAvailability(*e) {
		e.LastPublished = e.Availability
		announce = true
	}
	return copyEntry(e), announce, nil
}

// ExpireStale moves every online entry whose lastSeen is older than its
// timeout to offline and returns the entries that transitioned, already
// marked published. Entries that were never seen are not considered.
func (r *Registry) ExpireStale() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var out []Entry
	for _, e := range r.entries {
		if e.Availability != models.Online || e.LastSeen == nil {
			continue
		}
		if now.Sub(*e.LastSeen) <= e.Timeout {
			continue
		}
		e.Availability = models.Offline
		if ShouldBroadcastAvailability(*e) {
			e.LastPublished = e.Availability
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device.ID < out[j].Device.ID })
	return out
}

// Snapshot returns copies of all entries ordered by id.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device.ID < out[j].Device.ID })
	return out
}

// Stats counts entries per availability.
type Stats struct {
	Family  models.Family `json:"family"`
	Devices int           `json:"devices"`
	Online  int           `json:"online"`
	Offline int           `json:"offline"`
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{Family: r.family, Devices: len(r.entries)}
	for _, e := range r.entries {
		if e.Availability == models.Online {
			s.Online++
		} else {
			s.Offline++
		}
	}
	return s
}

func copyEntry(e *Entry) Entry {
	c := *e
	if e.LastSeen != nil {
		t := *e.LastSeen
		c.LastSeen = &t
	}
	if e.RSSI != nil {
		v := *e.RSSI
		c.RSSI = &v
	}
	return c
}
