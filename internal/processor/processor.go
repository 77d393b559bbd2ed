// Package processor implements the Request Processor of spec.md §4.2:
// the busy/idle state machine and the pending-request queue.
//
// Concurrency shape grounded on fluxforge/agent/server.go's
// busy-flag-guarded-by-mutex-with-409 pattern, generalized from a
// single boolean answer into the full enqueue/dequeue/fulfill cycle,
// plus control_plane/scheduler/queue.go's separate queue mutex
// discipline (a queue is its own lock domain, independent of whatever
// else is busy).
package processor

import (
	"log"
	"sync"
	"time"

	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

// ElectionStarter is the subset of the Election Manager the Request
// Processor depends on. Modeled as an interface (spec.md §9: "no
// cyclic ownership") so processor and election can be wired together
// by the orchestrator without importing each other.
type ElectionStarter interface {
	StartElection(req wire.EnergyRequest)
}

// ProductionMultiplier (K in spec.md §4.2) scales amountKWh into a
// production duration. The design permits K in [1, ~15]; we pick a
// small constant that keeps simulated production visible in logs and
// tests without long sleeps.
const ProductionMultiplier = 2 * time.Millisecond

// Processor owns the busy/idle state and the pending FIFO for a single
// plant.
type Processor struct {
	election ElectionStarter
	logger   *log.Logger

	busyMu  sync.Mutex
	busy    bool
	current *wire.EnergyRequest

	queueMu sync.Mutex
	queue   []wire.EnergyRequest

	// afterFunc lets tests substitute a fast/fake timer instead of
	// time.AfterFunc; nil means use the real wall clock.
	afterFunc func(time.Duration, func()) *time.Timer
}

// New creates a Processor. SetElectionStarter must be called before
// the first fulfill completes a production run (the orchestrator wires
// this up once both processor and election manager exist).
func New(logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{logger: logger}
}

// SetElectionStarter wires the Election Manager dependency.
func (p *Processor) SetElectionStarter(es ElectionStarter) {
	p.election = es
}

// HandleNewRequest implements the intake side of the dataflow in
// spec.md §2 ("intake -> request processor -> (when idle) election
// manager"): an idle plant delegates immediately to the Election
// Manager; a busy one enqueues. The Election Manager re-checks
// IsBusy on its own before bidding, closing the race spec.md §8
// calls out ("a plant that becomes busy between accepting the request
// and emitting a token must not emit a competitive bid").
func (p *Processor) HandleNewRequest(req wire.EnergyRequest) {
	if p.IsBusy() {
		p.Enqueue(req)
		return
	}
	p.StartElection(req)
}

// StartElection delegates immediately to the Election Manager.
func (p *Processor) StartElection(req wire.EnergyRequest) {
	if p.election == nil {
		p.logger.Printf("processor: StartElection(%s) dropped: no election manager wired", req.RequestID)
		return
	}
	p.election.StartElection(req)
}

// Enqueue appends req to the pending queue unless a request with the
// same RequestID is already queued.
func (p *Processor) Enqueue(req wire.EnergyRequest) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	for _, q := range p.queue {
		if q.RequestID == req.RequestID {
			return
		}
	}
	p.queue = append(p.queue, req)
}

// RemoveByID removes the matching queued request, if any.
func (p *Processor) RemoveByID(requestID string) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	for i, q := range p.queue {
		if q.RequestID == requestID {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}

// QueueLen reports the current pending-queue length (used by tests and
// the admin/metrics surface).
func (p *Processor) QueueLen() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.queue)
}

// IsBusy reports whether a production run is currently active.
func (p *Processor) IsBusy() bool {
	p.busyMu.Lock()
	defer p.busyMu.Unlock()
	return p.busy
}

// Fulfill transitions idle->busy atomically for req at the given
// price. If already busy, it logs and drops the request (spec.md
// §4.2). On success it schedules production completion after
// amountKWh * K, after which it transitions back to idle and starts an
// election for the head of the pending queue, if any.
func (p *Processor) Fulfill(req wire.EnergyRequest, price float64) bool {
	p.busyMu.Lock()
	if p.busy {
		p.busyMu.Unlock()
		p.logger.Printf("processor: fulfill(%s) dropped: already busy with %v", req.RequestID, p.current)
		return false
	}
	p.busy = true
	reqCopy := req
	p.current = &reqCopy
	p.busyMu.Unlock()

	p.RemoveByID(req.RequestID)

	duration := time.Duration(req.AmountKWh) * ProductionMultiplier
	p.logger.Printf("processor: fulfilling %s at price %.2f, production duration %v", req.RequestID, price, duration)

	schedule := time.AfterFunc
	if p.afterFunc != nil {
		schedule = p.afterFunc
	}
	schedule(duration, p.completeProduction)
	return true
}

// completeProduction runs in the scheduled timer's own goroutine. It
// always drives the busy->idle transition, even if production was
// effectively interrupted (spec.md §5: "Production simulation that is
// interrupted still drives the busy->idle transition via its
// completion path").
func (p *Processor) completeProduction() {
	p.busyMu.Lock()
	p.busy = false
	p.current = nil
	p.busyMu.Unlock()

	p.queueMu.Lock()
	if len(p.queue) == 0 {
		p.queueMu.Unlock()
		return
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	p.queueMu.Unlock()

	p.StartElection(next)
}
