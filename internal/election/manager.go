// Package election implements the Election Manager and Ring Algorithm
// of spec.md §4.3: one independent Chang-Roberts-style ring election
// per requestId, coordinated with the Request Processor and
// propagated to peers over the Peer RPC surface.
package election

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

// RingLocator is the subset of the Plant Registry the Election Manager
// depends on (spec.md §9: "no cyclic ownership" — modeled as a small
// interface instead of importing the registry package directly).
type RingLocator interface {
	Self() wire.PlantInfo
	NextInRing(currentPlantID int) wire.PlantInfo
}

// ProcessorControl is the subset of the Request Processor the Election
// Manager depends on.
type ProcessorControl interface {
	Fulfill(req wire.EnergyRequest, price float64) bool
	RemoveByID(requestID string)
	IsBusy() bool
}

// PeerCaller is the subset of the peer RPC client the Election Manager
// depends on.
type PeerCaller interface {
	ForwardElectionToken(ctx context.Context, peer wire.PlantInfo, token wire.ElectionToken) error
	AnnounceEnergyWinner(ctx context.Context, peer wire.PlantInfo, ann wire.WinnerAnnouncement) error
}

// CleanupDelay is the fixed delay (spec.md §4.3, §5) after which a
// completed ElectionState is removed, to absorb in-flight duplicates.
const CleanupDelay = 30 * time.Second

// Manager runs one election per requestId.
type Manager struct {
	registry  RingLocator
	processor ProcessorControl
	peers     PeerCaller
	logger    *log.Logger

	priceMin, priceMax float64
	rng                *rand.Rand
	rngMu              sync.Mutex

	mapMu  sync.Mutex
	states map[string]*State

	// afterFunc lets tests replace the cleanup timer.
	afterFunc func(time.Duration, func()) *time.Timer

	// rpcTimeout bounds every outbound peer call (spec.md §4.4,
	// §5: "5-45s, configurable"); defaults to 10s.
	rpcTimeout time.Duration
}

// NewManager constructs an Election Manager. priceMin/priceMax bound
// the uniform bid-price distribution of spec.md §4.3.
func NewManager(registry RingLocator, processor ProcessorControl, peers PeerCaller, priceMin, priceMax float64, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		registry:   registry,
		processor:  processor,
		peers:      peers,
		logger:     logger,
		priceMin:   priceMin,
		priceMax:   priceMax,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		states:     make(map[string]*State),
		rpcTimeout: 10 * time.Second,
	}
}

func (m *Manager) generatePrice() float64 {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	p := m.priceMin + m.rng.Float64()*(m.priceMax-m.priceMin)
	// round to 2 decimals
	return float64(int(p*100+0.5)) / 100
}

// getOrCreate returns the existing state for requestID, or creates one
// using factory if absent. The second return value is true if the
// state was newly created.
func (m *Manager) getOrCreate(requestID string, factory func() *State) (*State, bool) {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	if s, ok := m.states[requestID]; ok {
		return s, false
	}
	s := factory()
	m.states[requestID] = s
	return s, true
}

func (m *Manager) get(requestID string) (*State, bool) {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	s, ok := m.states[requestID]
	return s, ok
}

func (m *Manager) scheduleCleanup(requestID string) {
	schedule := time.AfterFunc
	if m.afterFunc != nil {
		schedule = m.afterFunc
	}
	schedule(CleanupDelay, func() {
		m.mapMu.Lock()
		delete(m.states, requestID)
		m.mapMu.Unlock()
	})
}

// StartElection implements spec.md §4.3.1 "On new energy request
// received from intake" (also the entry point used by the Request
// Processor when dequeuing a pending request after production
// completes).
func (m *Manager) StartElection(req wire.EnergyRequest) {
	self := m.registry.Self()

	if m.processor.IsBusy() {
		m.getOrCreate(req.RequestID, func() *State {
			return newState(req, wire.NoBid, Passive)
		})
		m.logger.Printf("election[%s]: plant %d busy at intake, marking passive", req.RequestID, self.PlantID)
		return
	}

	price := m.generatePrice()
	myBid := wire.Bid{PlantID: self.PlantID, Price: price}

	state, created := m.getOrCreate(req.RequestID, func() *State {
		return newState(req, myBid, Participant)
	})
	if !created && !state.PromoteToParticipant() {
		// Idempotence (spec.md §4.5, §8): a second arrival of the
		// same requestId must not re-enter the election.
		return
	}

	token := wire.ElectionToken{
		InitiatorID:     self.PlantID,
		RequestID:       req.RequestID,
		BestBid:         myBid,
		EnergyAmountKWh: req.AmountKWh,
	}
	m.initiate(state, token)
}

// initiate sends a freshly-built token (self as initiator) to the next
// ring member, or completes locally if self is alone in the ring.
func (m *Manager) initiate(state *State, token wire.ElectionToken) {
	self := m.registry.Self()
	next := m.registry.NextInRing(self.PlantID)

	if next.PlantID == self.PlantID {
		m.logger.Printf("election[%s]: single-node ring, completing locally", token.RequestID)
		m.complete(state, token.BestBid)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.rpcTimeout)
	defer cancel()
	if err := m.peers.ForwardElectionToken(ctx, next, token); err != nil {
		// spec.md §4.4, §9 open question 2: token-forward failure
		// does not evict the peer. The election is lost for this
		// round unless an alternative path exists; subsequent
		// registry updates and re-elections recover it.
		m.logger.Printf("election[%s]: forward token to peer %d failed: %v", token.RequestID, next.PlantID, err)
	}
}

// OnToken implements spec.md §4.3.1 "On incoming election token T for
// requestId".
func (m *Manager) OnToken(token wire.ElectionToken) {
	self := m.registry.Self()

	if token.InitiatorID == self.PlantID {
		state, ok := m.get(token.RequestID)
		if !ok || state.Announced() {
			return
		}
		m.complete(state, token.BestBid)
		return
	}

	if m.processor.IsBusy() {
		m.forwardUnchanged(token)
		return
	}

	req := wire.EnergyRequest{RequestID: token.RequestID, AmountKWh: token.EnergyAmountKWh}

	state, wasNew := m.getOrCreate(token.RequestID, func() *State {
		myBid := wire.Bid{PlantID: self.PlantID, Price: m.generatePrice()}
		return newState(req, myBid, Passive)
	})

	if state.Announced() {
		return
	}

	amIStronger := state.MyBid().Better(token.BestBid)

	if !wasNew && state.Participation() == Participant {
		// Case A: I was already a Participant.
		if amIStronger {
			// My own, stronger token is already circulating;
			// discard T (Chang-Roberts correctness).
			return
		}
		state.UpdateBestBidSeen(token.BestBid)
		m.forwardUnchanged(token)
		return
	}

	// Case B: I was Passive (late joiner) — includes the branch
	// where getOrCreate just created a fresh Passive state above.
	state.PromoteToParticipant()
	if amIStronger {
		newToken := wire.ElectionToken{
			InitiatorID:     self.PlantID,
			RequestID:       token.RequestID,
			BestBid:         state.MyBid(),
			EnergyAmountKWh: token.EnergyAmountKWh,
		}
		m.initiate(state, newToken)
		return
	}
	m.forwardUnchanged(token)
}

func (m *Manager) forwardUnchanged(token wire.ElectionToken) {
	self := m.registry.Self()
	next := m.registry.NextInRing(self.PlantID)
	if next.PlantID == self.PlantID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.rpcTimeout)
	defer cancel()
	if err := m.peers.ForwardElectionToken(ctx, next, token); err != nil {
		m.logger.Printf("election[%s]: forward token to peer %d failed: %v", token.RequestID, next.PlantID, err)
	}
}

// complete finalizes the election for state's requestId with the
// given final best bid: latches winnerAnnounced, fulfills locally if
// self won, and sends the winner announcement onward.
func (m *Manager) complete(state *State, finalBid wire.Bid) {
	self := m.registry.Self()
	req := state.Request()

	if !state.TryLatchAnnounced() {
		return
	}

	if finalBid.PlantID == self.PlantID {
		m.processor.Fulfill(req, finalBid.Price)
	}

	ann := wire.WinnerAnnouncement{
		RequestID:    req.RequestID,
		WinningPlant: finalBid.PlantID,
		WinningPrice: finalBid.Price,
		InitiatorID:  self.PlantID,
	}
	m.sendWinnerAnnouncement(ann)
	m.scheduleCleanup(req.RequestID)
}

func (m *Manager) sendWinnerAnnouncement(ann wire.WinnerAnnouncement) {
	self := m.registry.Self()
	next := m.registry.NextInRing(self.PlantID)
	if next.PlantID == self.PlantID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.rpcTimeout)
	defer cancel()
	if err := m.peers.AnnounceEnergyWinner(ctx, next, ann); err != nil {
		// spec.md §4.4: winner-announcement failures DO evict the
		// peer, but that is the peerclient's responsibility (it
		// updates the registry on failure). The announcement is not
		// resent to the new successor.
		m.logger.Printf("election[%s]: announce winner to peer %d failed: %v", ann.RequestID, next.PlantID, err)
	}
}

// OnWinnerAnnouncement implements spec.md §4.3.1 "On winner
// announcement A for requestId".
func (m *Manager) OnWinnerAnnouncement(ann wire.WinnerAnnouncement) {
	self := m.registry.Self()
	if ann.InitiatorID == self.PlantID {
		// The announcement has completed its own circulation.
		return
	}

	state, ok := m.get(ann.RequestID)
	if !ok {
		m.processor.RemoveByID(ann.RequestID)
		m.forwardWinnerAnnouncement(ann)
		return
	}

	if state.TryLatchAnnounced() {
		if ann.WinningPlant == self.PlantID {
			m.processor.Fulfill(state.Request(), ann.WinningPrice)
		} else {
			m.processor.RemoveByID(ann.RequestID)
		}
		m.scheduleCleanup(ann.RequestID)
	}

	m.forwardWinnerAnnouncement(ann)
}

func (m *Manager) forwardWinnerAnnouncement(ann wire.WinnerAnnouncement) {
	self := m.registry.Self()
	next := m.registry.NextInRing(self.PlantID)
	if next.PlantID == self.PlantID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.rpcTimeout)
	defer cancel()
	if err := m.peers.AnnounceEnergyWinner(ctx, next, ann); err != nil {
		m.logger.Printf("election[%s]: forward winner announcement to peer %d failed: %v", ann.RequestID, next.PlantID, err)
	}
}

// StateCount reports the number of live ElectionStates (used by
// metrics and tests).
func (m *Manager) StateCount() int {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	return len(m.states)
}
