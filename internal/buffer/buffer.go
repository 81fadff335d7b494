// Package buffer coalesces partial measurements of sensors that split one
// reading over several packets.
package buffer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"ble-bridge/models"
)

var (
	ErrUnknownDevice = errors.New("buffer: device has no measurement buffer")
	ErrUnknownKind   = errors.New("buffer: measurement kind not buffered")
)

type slot[K comparable, V any] struct {
	values       map[K]V
	lastReleased time.Time
}

// Buffer keeps one slot per expected kind for every registered device. A
// device's slots are released together once every kind is filled or the
// retention window since the previous release has elapsed.
type Buffer[K comparable, V any] struct {
	mu        sync.Mutex
	kinds     map[K]struct{}
	retention time.Duration
	devices   map[string]*slot[K, V]
	now       func() time.Time
}

// New creates buffers for ids. now defaults to time.Now.
func New[K comparable, V any](kinds []K, retention time.Duration, ids []string, now func() time.Time) *Buffer[K, V] {
	if now == nil {
		now = time.Now
	}
	b := &Buffer[K, V]{
		kinds:     make(map[K]struct{}, len(kinds)),
		retention: retention,
		devices:   make(map[string]*slot[K, V], len(ids)),
		now:       now,
	}
	for _, k := range kinds {
		b.kinds[k] = struct{}{}
	}
	for _, id := range ids {
		b.Register(id)
	}
	return b
}

// Register adds an empty buffer for id; an existing buffer is kept.
func (b *Buffer[K, V]) Register(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id = models.NormalizeID(id)
	if _, ok := b.devices[id]; ok {
		return
	}
	b.devices[id] = &slot[K, V]{values: make(map[K]V, len(b.kinds)), lastReleased: b.now()}
}

// Put overwrites the kind slot of id. When the buffer becomes ready its
// contents are returned with ready set and the buffer starts over.
func (b *Buffer[K, V]) Put(id string, kind K, v V) (released map[K]V, ready bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.devices[models.NormalizeID(id)]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	if _, ok := b.kinds[kind]; !ok {
		return nil, false, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
	s.values[kind] = v

	now := b.now()
	if len(s.values) < len(b.kinds) && now.Sub(s.lastReleased) <= b.retention {
		return nil, false, nil
	}
	released = s.values
	s.values = make(map[K]V, len(b.kinds))
	s.lastReleased = now
	return released, true, nil
}

// Pending returns a copy of what id has buffered so far.
func (b *Buffer[K, V]) Pending(id string) (map[K]V, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.devices[models.NormalizeID(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	out := make(map[K]V, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}
