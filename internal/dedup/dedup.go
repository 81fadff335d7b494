// Package dedup drops legacy-format advertisements of devices that were
// recently seen broadcasting a superseding format.
package dedup

import (
	"sync"
	"time"

	"ble-bridge/models"
)

// DefaultTTL is how long a superseding sighting suppresses the legacy format.
const DefaultTTL = 5 * time.Minute

type Suppressor struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// New returns a Suppressor; a non-positive ttl means DefaultTTL and a nil
// now means time.Now.
func New(ttl time.Duration, now func() time.Time) *Suppressor {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Suppressor{ttl: ttl, seen: make(map[string]time.Time), now: now}
}

// MarkSuperseding records a superseding-format sighting for id.
func (s *Suppressor) MarkSuperseding(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[models.NormalizeID(id)] = s.now()
}

// Suppressed reports whether a legacy-format advertisement of id must be
// dropped.
func (s *Suppressor) Suppressed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = models.NormalizeID(id)
	at, ok := s.seen[id]
	if !ok {
		return false
	}
	if s.now().Sub(at) > s.ttl {
		delete(s.seen, id)
		return false
	}
	return true
}
