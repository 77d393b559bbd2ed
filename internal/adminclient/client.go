// Package adminclient is the HTTP client a plant's lifecycle
// orchestrator uses to register with the administration service
// (spec.md §4.7, §6). Style lifted directly from
// fluxforge/agent/heartbeat.go's sendRegistration: marshal a JSON
// body, http.Post, branch on status code.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nic0-o1/DPS-DESM/internal/rpcerr"
	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

// Client talks to the administration HTTP service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client bound to baseURL (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{}}
}

// Register implements POST /plants (spec.md §6). Returns
// rpcerr.RegistrationConflict on HTTP 409, rpcerr.AdminUnreachable on
// any other failure, and otherwise the registrant's own stored record
// (RegistrationTime assigned by the administration service) plus the
// list of already-registered plants. The caller must adopt the
// returned self record rather than its own guess, or its ring
// ordering will diverge from every peer that learns of it via
// GET /plants (spec.md §9, open question 4).
func (c *Client) Register(ctx context.Context, self wire.PlantInfo) (wire.PlantInfo, []wire.PlantInfo, error) {
	data, err := json.Marshal(self)
	if err != nil {
		return wire.PlantInfo{}, nil, &rpcerr.AdminUnreachable{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/plants", bytes.NewReader(data))
	if err != nil {
		return wire.PlantInfo{}, nil, &rpcerr.AdminUnreachable{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return wire.PlantInfo{}, nil, &rpcerr.AdminUnreachable{Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var body wire.RegisterResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return wire.PlantInfo{}, nil, &rpcerr.AdminUnreachable{Err: err}
		}
		return body.Self, body.Known, nil
	case http.StatusConflict:
		return wire.PlantInfo{}, nil, &rpcerr.RegistrationConflict{PlantID: self.PlantID}
	default:
		return wire.PlantInfo{}, nil, &rpcerr.AdminUnreachable{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}
