// Package adminserver implements the administration HTTP service of
// spec.md §6: plant registration, the plant directory, and the CO2
// average statistic, plus a live WebSocket feed. Grounded on
// control_plane/store/memory.go's map-plus-mutex store and
// control_plane/api.go's handler style.
package adminserver

import (
	"sort"
	"sync"
	"time"

	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

// co2Sample is one published average, timestamped with its batch's
// ListComputationTimestamp for the t1/t2 range query of spec.md §6.
type co2Sample struct {
	value     float64
	plantID   int
	timestamp time.Time
}

// Store holds every plant known to the administration service and the
// CO2 averages it has received, guarded by a single RWMutex in the
// style of control_plane/store/memory.go's MemoryStore.
type Store struct {
	mu     sync.RWMutex
	plants map[int]wire.PlantInfo
	co2    []co2Sample
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{plants: make(map[int]wire.PlantInfo)}
}

// Register adds a new plant. It returns false if plantID is already
// registered (spec.md §6: duplicate registration is a conflict, not an
// upsert).
func (s *Store) Register(p wire.PlantInfo) (known []wire.PlantInfo, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plants[p.PlantID]; exists {
		return nil, false
	}

	known = make([]wire.PlantInfo, 0, len(s.plants))
	for _, other := range s.plants {
		known = append(known, other)
	}
	sort.Slice(known, func(i, j int) bool { return known[i].PlantID < known[j].PlantID })

	s.plants[p.PlantID] = p
	return known, true
}

// List returns every registered plant, sorted by PlantID.
func (s *Store) List() []wire.PlantInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]wire.PlantInfo, 0, len(s.plants))
	for _, p := range s.plants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlantID < out[j].PlantID })
	return out
}

// Get returns a single plant by ID.
func (s *Store) Get(plantID int) (wire.PlantInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plants[plantID]
	return p, ok
}

// Count returns the number of registered plants.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.plants)
}

// RecordCO2 appends the averages carried by a pollution batch, each
// stamped with the batch's own ListComputationTimestamp (spec.md §6:
// the [t1,t2] query filters on when the batch's averages were
// computed, not on when the administration service happened to
// receive it).
func (s *Store) RecordCO2(batch wire.PollutionBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	computedAt := time.UnixMilli(batch.ListComputationTimestamp)
	for _, v := range batch.Averages {
		s.co2 = append(s.co2, co2Sample{value: v, plantID: batch.PlantID, timestamp: computedAt})
	}
}

// AverageCO2 returns the mean of every sample with t1 <= timestamp <= t2,
// and whether any samples were found (spec.md §6: an empty range
// reports found == false, which the handler answers with
// rpcerr.NoData, not zero).
func (s *Store) AverageCO2(t1, t2 time.Time) (avg float64, found bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum float64
	var n int
	for _, sample := range s.co2 {
		if sample.timestamp.Before(t1) || sample.timestamp.After(t2) {
			continue
		}
		sum += sample.value
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
