package election

import (
	"sync"

	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

// Participation records whether this plant has emitted/adopted a
// token (Participant) or not (Passive) for a given request.
type Participation int

const (
	Passive Participation = iota
	Participant
)

// State is the per-requestId election state owned exclusively by the
// Election Manager (spec.md §3, §4.3). All mutations go through the
// methods below, which serialize access with a per-state mutex —
// grounded on the teacher's LeaderElector, which guards its own
// isLeader/currentEpoch/currentValue fields with a single
// sync.RWMutex and exposes only named transition methods
// (becomeLeader, stepDown, acquire, renew, release) rather than
// letting callers touch fields directly.
type State struct {
	mu sync.Mutex

	request       wire.EnergyRequest
	myBid         wire.Bid
	bestBidSeen   wire.Bid
	participation Participation
	announced     bool
}

func newState(req wire.EnergyRequest, myBid wire.Bid, participation Participation) *State {
	return &State{
		request:       req,
		myBid:         myBid,
		bestBidSeen:   wire.NoBid,
		participation: participation,
	}
}

// Participation returns the current role.
func (s *State) Participation() Participation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participation
}

// MyBid returns this plant's own bid for the request.
func (s *State) MyBid() wire.Bid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.myBid
}

// BestBidSeen returns the strongest bid observed via token traversal
// so far.
func (s *State) BestBidSeen() wire.Bid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bestBidSeen
}

// Request returns the request this state was created for.
func (s *State) Request() wire.EnergyRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}

// UpdateBestBidSeen overwrites the best-bid-seen field.
func (s *State) UpdateBestBidSeen(b wire.Bid) {
	s.mu.Lock()
	s.bestBidSeen = b
	s.mu.Unlock()
}

// PromoteToParticipant transitions Passive->Participant if not already
// a Participant. Returns true if it performed the transition.
func (s *State) PromoteToParticipant() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.participation == Participant {
		return false
	}
	s.participation = Participant
	return true
}

// TryLatchAnnounced is the one-way latch of spec.md §4.3: it returns
// true exactly once across the entire lifetime of the state, on the
// first call; every subsequent call returns false.
func (s *State) TryLatchAnnounced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.announced {
		return false
	}
	s.announced = true
	return true
}

// Announced reports whether the winner has already been latched,
// without attempting to latch it.
func (s *State) Announced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.announced
}
