package adminserver

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nic0-o1/DPS-DESM/internal/obs"
	"github.com/nic0-o1/DPS-DESM/internal/rpcerr"
	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

// registerLimiterRate is the rate at which the server's limiter caps
// POST /plants, the way
// control_plane/api.go's heartbeatLimiter caps agent heartbeats.
var registerLimiterRate = rate.Limit(50)

// Server implements the four administration endpoints of spec.md §6
// plus a pollution intake hook and a live-feed upgrade, grounded on
// control_plane/api.go's plain net/http handler style (no router
// framework).
type Server struct {
	store    *Store
	feed     *LiveFeed
	logger   *log.Logger
	mux      *http.ServeMux
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
}

// New wires a Server around store and feed.
func New(store *Store, feed *LiveFeed, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		store:   store,
		feed:    feed,
		logger:  logger,
		mux:     http.NewServeMux(),
		limiter: rate.NewLimiter(registerLimiterRate, 100),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.mux.HandleFunc("/plants", s.handlePlants)
	s.mux.HandleFunc("/plants/", s.handlePlantByID)
	s.mux.HandleFunc("/statistics/co2/average", s.handleCO2Average)
	s.mux.HandleFunc("/live", s.handleLive)
	return s
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler { return s.mux }

// IngestPollution is called by the plant-facing side of the process
// (if the administration service also subscribes to the pollution
// topic) to feed CO2 samples into the statistics store.
func (s *Server) IngestPollution(batch wire.PollutionBatch) {
	s.store.RecordCO2(batch)
}

func (s *Server) handlePlants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleRegister(w, r)
	case http.MethodGet:
		plants := s.store.List()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(plants)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		http.Error(w, "too many registration attempts", http.StatusTooManyRequests)
		return
	}

	var p wire.PlantInfo
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if p.PlantID == 0 {
		http.Error(w, "plant.id is required", http.StatusBadRequest)
		return
	}
	if p.RegistrationTime == 0 {
		p.RegistrationTime = time.Now().UnixNano()
	}

	known, ok := s.store.Register(p)
	if !ok {
		http.Error(w, "plant already registered", http.StatusConflict)
		return
	}

	obs.AdminRegisteredPlants.Set(float64(s.store.Count()))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(wire.RegisterResponse{Self: p, Known: known})
}

func (s *Server) handlePlantByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/plants/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid plant id", http.StatusBadRequest)
		return
	}

	p, ok := s.store.Get(id)
	if !ok {
		http.Error(w, "plant not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}

func (s *Server) handleCO2Average(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	defer func() { obs.AdminCO2QueryDuration.Observe(time.Since(start).Seconds()) }()

	t1, err1 := parseUnixMillis(r.URL.Query().Get("t1"))
	t2, err2 := parseUnixMillis(r.URL.Query().Get("t2"))
	if err1 != nil || err2 != nil {
		http.Error(w, "t1 and t2 must be millisecond unix timestamps", http.StatusBadRequest)
		return
	}
	if t1.After(t2) {
		err := &rpcerr.InvalidRequest{Reason: "t1 must not be after t2"}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	avg, found := s.store.AverageCO2(t1, t2)
	if !found {
		err := &rpcerr.NoData{Reason: "no CO2 samples in the requested range"}
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]float64{"average": avg})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("adminserver: websocket upgrade failed: %v", err)
		return
	}
	s.feed.Register(conn)
}

func parseUnixMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
