// Package peerclient implements the outbound half of the Peer RPC
// surface of spec.md §4.4: AnnouncePresence, ForwardElectionToken, and
// AnnounceEnergyWinner, dialed as JSON-over-HTTP requests.
//
// This mirrors the teacher's own agent-to-control-plane protocol
// (fluxforge/agent/heartbeat.go's sendRegistration/sendHeartbeat) —
// plain http.Client, JSON bodies, one call per method — generalized
// from "one fixed control-plane URL" to "one cached client per peer,
// looked up by plant id," per spec.md §4.4's connection-caching
// requirement.
package peerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/nic0-o1/DPS-DESM/internal/rpcerr"
	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

// PeerEvictor is the subset of the Plant Registry the client uses to
// evict unreachable peers.
type PeerEvictor interface {
	Remove(plantID int)
}

// Client dials peer plants over HTTP, caching one *http.Client per
// peer (keyed by plantId), lazily created.
type Client struct {
	mu      sync.Mutex
	clients map[int]*http.Client

	registry PeerEvictor
	logger   *log.Logger
}

// New creates a peer RPC client. registry is used to evict peers on
// AnnouncePresence/AnnounceEnergyWinner failure (spec.md §4.4).
func New(registry PeerEvictor, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		clients:  make(map[int]*http.Client),
		registry: registry,
		logger:   logger,
	}
}

func (c *Client) clientFor(plantID int) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[plantID]; ok {
		return cl
	}
	cl := &http.Client{}
	c.clients[plantID] = cl
	return cl
}

func peerURL(peer wire.PlantInfo, path string) string {
	return fmt.Sprintf("http://%s:%d%s", peer.Address, peer.Port, path)
}

func (c *Client) post(ctx context.Context, peer wire.PlantInfo, path string, body any) (wire.Ack, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return wire.Ack{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peerURL(peer, path), bytes.NewReader(data))
	if err != nil {
		return wire.Ack{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.clientFor(peer.PlantID).Do(req)
	if err != nil {
		return wire.Ack{}, &rpcerr.PeerUnreachable{PlantID: peer.PlantID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return wire.Ack{}, &rpcerr.PeerUnreachable{PlantID: peer.PlantID, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var ack wire.Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return wire.Ack{}, &rpcerr.PeerUnreachable{PlantID: peer.PlantID, Err: err}
	}
	return ack, nil
}

// AnnouncePresence tells peer about self. On RPC failure the peer is
// removed from the local registry (spec.md §4.4: "peer is presumed
// gone").
func (c *Client) AnnouncePresence(ctx context.Context, peer wire.PlantInfo, self wire.PlantInfo) error {
	_, err := c.post(ctx, peer, "/peer/announce", self)
	if err != nil {
		c.logger.Printf("peerclient: AnnouncePresence to %d failed, evicting: %v", peer.PlantID, err)
		c.registry.Remove(peer.PlantID)
	}
	return err
}

// ForwardElectionToken forwards an election token to peer. On failure
// it logs and retains the peer (spec.md §4.4, §9 open question 2):
// the election for this requestId may be lost this round; the higher
// layer relies on subsequent registry updates and re-elections.
func (c *Client) ForwardElectionToken(ctx context.Context, peer wire.PlantInfo, token wire.ElectionToken) error {
	_, err := c.post(ctx, peer, "/peer/election/token", token)
	return err
}

// AnnounceEnergyWinner forwards a winner announcement to peer. On RPC
// failure the peer is removed from the local registry, same as
// AnnouncePresence (spec.md §4.4). The announcement itself is not
// resent to anyone.
func (c *Client) AnnounceEnergyWinner(ctx context.Context, peer wire.PlantInfo, ann wire.WinnerAnnouncement) error {
	_, err := c.post(ctx, peer, "/peer/election/winner", ann)
	if err != nil {
		c.logger.Printf("peerclient: AnnounceEnergyWinner to %d failed, evicting: %v", peer.PlantID, err)
		c.registry.Remove(peer.PlantID)
	}
	return err
}

// DefaultDeadline is the default outbound RPC deadline recommended by
// spec.md §5 ("5-45s, configurable").
const DefaultDeadline = 10 * time.Second
