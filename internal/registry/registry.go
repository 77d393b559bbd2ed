// Package registry implements the Plant Registry of spec.md §4.1: the
// set of known peers and the deterministic logical ring derived from
// them.
//
// The concurrency shape is lifted from the teacher's
// coordination.LeaderElector: a sync.Mutex guards the authoritative
// map, while readers on the hot path go through a separate, cheaper
// path. Here that cheap path is spec.md §9's suggested "immutable
// sorted array behind an atomic pointer" rather than an RWMutex,
// because nextInRing is called on every single election hop and must
// not contend with writers at all.
package registry

import (
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

// Registry tracks self plus every other known plant and derives the
// logical ring ordering (sorted by RegistrationTime, ties broken by
// PlantID).
type Registry struct {
	self wire.PlantInfo

	mu     sync.Mutex
	others map[int]wire.PlantInfo

	// ring is the lock-free read cache: a sorted snapshot of
	// others ∪ {self}, rebuilt under mu on every mutation and
	// published via atomic.Pointer so nextInRing never blocks on
	// concurrent writers.
	ring atomic.Pointer[[]wire.PlantInfo]

	logger *log.Logger
}

// New creates a Registry seeded with just self.
func New(self wire.PlantInfo, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	r := &Registry{
		self:   self,
		others: make(map[int]wire.PlantInfo),
		logger: logger,
	}
	r.rebuildRing()
	return r
}

// AddInitial idempotently merges a list obtained from the
// administration service. Self and already-known plants are ignored.
func (r *Registry) AddInitial(list []wire.PlantInfo) {
	r.mu.Lock()
	changed := false
	for _, p := range list {
		if p.PlantID == r.self.PlantID {
			continue
		}
		if _, exists := r.others[p.PlantID]; exists {
			continue
		}
		r.others[p.PlantID] = p
		changed = true
	}
	r.mu.Unlock()
	if changed {
		r.rebuildRingLocked()
	}
}

// Add inserts a plant if it is new and not self.
func (r *Registry) Add(p wire.PlantInfo) {
	if p.PlantID == r.self.PlantID {
		return
	}
	r.mu.Lock()
	if _, exists := r.others[p.PlantID]; exists {
		r.mu.Unlock()
		return
	}
	r.others[p.PlantID] = p
	r.mu.Unlock()
	r.rebuildRingLocked()
}

// Remove deletes a plant by id. No-op if absent.
func (r *Registry) Remove(plantID int) {
	r.mu.Lock()
	if _, exists := r.others[plantID]; !exists {
		r.mu.Unlock()
		return
	}
	delete(r.others, plantID)
	r.mu.Unlock()
	r.rebuildRingLocked()
}

// Snapshot returns a point-in-time copy of the known peers (excluding
// self).
func (r *Registry) Snapshot() []wire.PlantInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wire.PlantInfo, 0, len(r.others))
	for _, p := range r.others {
		out = append(out, p)
	}
	return out
}

// Self returns this plant's own PlantInfo.
func (r *Registry) Self() wire.PlantInfo {
	return r.self
}

// NextInRing returns the successor of currentPlantID in the ring. If
// the ring contains only self, it returns self. If currentPlantID is
// not present in the ring, it returns the ring's first element and
// logs a warning.
func (r *Registry) NextInRing(currentPlantID int) wire.PlantInfo {
	ring := *r.ring.Load()
	if len(ring) == 1 {
		return ring[0]
	}

	idx := -1
	for i, p := range ring {
		if p.PlantID == currentPlantID {
			idx = i
			break
		}
	}
	if idx == -1 {
		r.logger.Printf("registry: nextInRing(%d): plant not present in ring, returning first element", currentPlantID)
		return ring[0]
	}
	return ring[(idx+1)%len(ring)]
}

// rebuildRingLocked acquires mu to take a consistent snapshot, then
// rebuilds and publishes the ring. Named "Locked" only in the sense
// that it performs its own locking; it must not be called while mu is
// already held.
func (r *Registry) rebuildRingLocked() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuildRing()
}

// rebuildRing recomputes the sorted ring. Caller must hold mu.
func (r *Registry) rebuildRing() {
	all := make([]wire.PlantInfo, 0, len(r.others)+1)
	all = append(all, r.self)
	for _, p := range r.others {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].RegistrationTime != all[j].RegistrationTime {
			return all[i].RegistrationTime < all[j].RegistrationTime
		}
		return all[i].PlantID < all[j].PlantID
	})
	r.ring.Store(&all)
}
