// Package peerserver implements the inbound half of the Peer RPC
// surface of spec.md §4.4. Handlers follow fluxforge/agent/server.go's
// shape (decode JSON body, validate, respond, maybe continue async in
// a goroutine) but generalize "accept then run a goroutine" into the
// "ack immediately, dispatch to the Election Manager asynchronously"
// discipline spec.md §4.4 and §5 require: the HTTP handler goroutine
// must never block on ring forwarding.
package peerserver

import (
	"encoding/json"
	"log"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

// RegistryAdder is the subset of the Plant Registry the server uses.
type RegistryAdder interface {
	Add(wire.PlantInfo)
}

// TokenHandler is the subset of the Election Manager used for tokens.
type TokenHandler interface {
	OnToken(wire.ElectionToken)
}

// WinnerHandler is the subset of the Election Manager used for winner
// announcements.
type WinnerHandler interface {
	OnWinnerAnnouncement(wire.WinnerAnnouncement)
}

// Server exposes the three peer RPC endpoints over HTTP.
type Server struct {
	registry RegistryAdder
	tokens   TokenHandler
	winners  WinnerHandler
	logger   *log.Logger

	limiter *rate.Limiter

	mux *http.ServeMux
}

// New constructs a peer RPC server. The rate limiter protects a plant
// from a runaway or misbehaving peer (domain-stack wiring grounded on
// control_plane/api.go's heartbeatLimiter/reconcileLimiter).
func New(registry RegistryAdder, tokens TokenHandler, winners WinnerHandler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		registry: registry,
		tokens:   tokens,
		winners:  winners,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(200), 400),
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/peer/announce", s.handleAnnounce)
	s.mux.HandleFunc("/peer/election/token", s.handleToken)
	s.mux.HandleFunc("/peer/election/winner", s.handleWinner)
	return s
}

// Handler returns the http.Handler to mount on a listener.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func writeAck(w http.ResponseWriter, ack wire.Ack) {
	w.Header().Set("Content-Type", "application/json")
	if !ack.Success {
		w.WriteHeader(http.StatusOK) // per spec.md §7: never an unhandled
		// failure across the RPC boundary — always answer with Ack,
		// success=false carries the semantic failure, not the HTTP status.
	}
	_ = json.NewEncoder(w).Encode(ack)
}

func (s *Server) rateLimited(w http.ResponseWriter) bool {
	if s.limiter.Allow() {
		return false
	}
	writeAck(w, wire.Ack{Success: false, Message: "rate limited"})
	return true
}

// handleAnnounce implements AnnouncePresence: adds the announcer to
// this plant's registry.
func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.rateLimited(w) {
		return
	}

	var info wire.PlantInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		writeAck(w, wire.Ack{Success: false, Message: "malformed plant info: " + err.Error()})
		return
	}

	s.registry.Add(info)
	writeAck(w, wire.Ack{Success: true, Message: "registered"})
}

// handleToken implements ForwardElectionToken: acknowledges
// immediately, then dispatches to the Election Manager on its own
// goroutine.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.rateLimited(w) {
		return
	}

	var token wire.ElectionToken
	if err := json.NewDecoder(r.Body).Decode(&token); err != nil {
		writeAck(w, wire.Ack{Success: false, Message: "malformed token: " + err.Error()})
		return
	}

	writeAck(w, wire.Ack{Success: true, Message: "accepted"})
	go s.tokens.OnToken(token)
}

// handleWinner implements AnnounceEnergyWinner: same
// ack-then-dispatch discipline as handleToken.
func (s *Server) handleWinner(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.rateLimited(w) {
		return
	}

	var ann wire.WinnerAnnouncement
	if err := json.NewDecoder(r.Body).Decode(&ann); err != nil {
		writeAck(w, wire.Ack{Success: false, Message: "malformed winner announcement: " + err.Error()})
		return
	}

	writeAck(w, wire.Ack{Success: true, Message: "accepted"})
	go s.winners.OnWinnerAnnouncement(ann)
}
