// Package orchestrator sequences a plant process's lifecycle: bind the
// peer RPC server, register with the administration service, seed the
// Plant Registry, start MQTT intake and the pollution aggregator, then
// announce presence to every known peer. Grounded on
// fluxforge/agent/main.go's registration-with-backoff and signal
// handling, generalized from a single HTTP registration call into the
// multi-component startup spec.md §4.7 requires.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/nic0-o1/DPS-DESM/internal/adminclient"
	"github.com/nic0-o1/DPS-DESM/internal/election"
	"github.com/nic0-o1/DPS-DESM/internal/intake"
	"github.com/nic0-o1/DPS-DESM/internal/mqttbus"
	"github.com/nic0-o1/DPS-DESM/internal/peerclient"
	"github.com/nic0-o1/DPS-DESM/internal/peerserver"
	"github.com/nic0-o1/DPS-DESM/internal/pollution"
	"github.com/nic0-o1/DPS-DESM/internal/processor"
	"github.com/nic0-o1/DPS-DESM/internal/registry"
	"github.com/nic0-o1/DPS-DESM/internal/rpcerr"
	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

// MaxRegistrationBackoff caps the exponential backoff used while
// retrying admin registration, mirroring fluxforge/agent/main.go's
// maxBackoff.
const MaxRegistrationBackoff = 30 * time.Second

// Plant owns every long-lived component of a single plant process and
// sequences their startup and shutdown.
type Plant struct {
	logger *log.Logger

	self wire.PlantInfo

	registry   *registry.Registry
	processor  *processor.Processor
	election   *election.Manager
	peerClient *peerclient.Client
	peerSrv    *peerserver.Server
	httpSrv    *http.Server

	bus        *mqttbus.Bus
	subscriber *intake.Subscriber
	aggregator *pollution.Aggregator

	pollutionTopic string
	requestsTopic  string
}

// Config carries everything needed to start a plant process.
type Config struct {
	Self           wire.PlantInfo
	AdminBaseURL   string
	BrokerURL      string
	RequestsTopic  string
	PollutionTopic string
	PriceMin       float64
	PriceMax       float64
}

// Start runs the full startup sequence of spec.md §4.7. On success it
// returns a *Plant ready to serve; the caller is responsible for
// calling Stop on shutdown.
//
// Startup order:
//  1. bind the peer RPC listener (rpcerr.PortInUse on failure)
//  2. register with the administration service (rpcerr.RegistrationConflict,
//     rpcerr.AdminUnreachable)
//  3. seed the Plant Registry from the returned known-plants list
//  4. start MQTT intake and the pollution aggregator
//  5. announce presence to every known peer
func Start(ctx context.Context, cfg Config, logger *log.Logger) (*Plant, error) {
	if logger == nil {
		logger = log.Default()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Self.Port))
	if err != nil {
		return nil, &rpcerr.PortInUse{Port: cfg.Self.Port, Err: err}
	}

	admin := adminclient.New(cfg.AdminBaseURL)
	self, known, err := registerWithBackoff(ctx, admin, cfg.Self, logger)
	if err != nil {
		ln.Close()
		return nil, err
	}
	// Adopt the administration service's assigned RegistrationTime
	// rather than cfg.Self's zero value, or this plant's ring would
	// diverge from every peer that learns of it via GET /plants.
	cfg.Self = self

	reg := registry.New(cfg.Self, logger)
	reg.AddInitial(known)

	proc := processor.New(logger)
	peerCli := peerclient.New(reg, logger)
	mgr := election.NewManager(reg, proc, peerCli, cfg.PriceMin, cfg.PriceMax, logger)
	proc.SetElectionStarter(mgr)

	peerSrv := peerserver.New(reg, mgr, mgr, logger)
	httpSrv := &http.Server{Handler: peerSrv.Handler()}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Printf("orchestrator: peer RPC server stopped: %v", err)
		}
	}()

	subscriber := intake.New(proc, logger)

	bus, err := mqttbus.Connect(ctx, cfg.BrokerURL, fmt.Sprintf("plant-%d", cfg.Self.PlantID), subscriber.HandleMessage, logger)
	if err != nil {
		httpSrv.Close()
		return nil, err
	}

	if err := bus.Subscribe(ctx, cfg.RequestsTopic, 1); err != nil {
		httpSrv.Close()
		bus.Disconnect(ctx)
		return nil, err
	}

	aggregator := pollution.New(cfg.Self.PlantID, cfg.PollutionTopic, bus, logger)
	aggregator.Start(ctx)

	p := &Plant{
		logger:         logger,
		self:           cfg.Self,
		registry:       reg,
		processor:      proc,
		election:       mgr,
		peerClient:     peerCli,
		peerSrv:        peerSrv,
		httpSrv:        httpSrv,
		bus:            bus,
		subscriber:     subscriber,
		aggregator:     aggregator,
		requestsTopic:  cfg.RequestsTopic,
		pollutionTopic: cfg.PollutionTopic,
	}

	p.announcePresence(ctx, known)

	return p, nil
}

// backoffBase is the starting delay of registerWithBackoff's
// exponential retry; a package variable so tests can shrink it.
var backoffBase = 1 * time.Second

func registerWithBackoff(ctx context.Context, admin *adminclient.Client, self wire.PlantInfo, logger *log.Logger) (wire.PlantInfo, []wire.PlantInfo, error) {
	backoff := backoffBase
	for {
		registered, known, err := admin.Register(ctx, self)
		if err == nil {
			return registered, known, nil
		}

		if _, conflict := err.(*rpcerr.RegistrationConflict); conflict {
			return wire.PlantInfo{}, nil, err
		}

		logger.Printf("orchestrator: registration failed: %v. retrying in %s", err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return wire.PlantInfo{}, nil, ctx.Err()
		}
		backoff *= 2
		if backoff > MaxRegistrationBackoff {
			backoff = MaxRegistrationBackoff
		}
	}
}

// announcePresence notifies every already-known peer of self, per
// spec.md §4.7 step 5. Failures are logged; peerclient evicts
// unreachable peers on its own.
func (p *Plant) announcePresence(ctx context.Context, known []wire.PlantInfo) {
	for _, peer := range known {
		go func(peer wire.PlantInfo) {
			announceCtx, cancel := context.WithTimeout(ctx, peerclient.DefaultDeadline)
			defer cancel()
			if err := p.peerClient.AnnouncePresence(announceCtx, peer, p.self); err != nil {
				p.logger.Printf("orchestrator: failed to announce presence to plant %d: %v", peer.PlantID, err)
			}
		}(peer)
	}
}

// Stop shuts every component down in reverse startup order.
func (p *Plant) Stop(ctx context.Context) {
	p.aggregator.Stop()
	p.bus.Disconnect(ctx)
	p.httpSrv.Shutdown(ctx)
}

// Registry exposes the plant's registry, used by cmd/plant for
// diagnostics.
func (p *Plant) Registry() *registry.Registry { return p.registry }
