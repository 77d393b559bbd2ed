package adminclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nic0-o1/DPS-DESM/internal/rpcerr"
	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

func TestRegisterSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(wire.RegisterResponse{
			Self:  wire.PlantInfo{PlantID: 3, RegistrationTime: 42},
			Known: []wire.PlantInfo{{PlantID: 1}, {PlantID: 2}},
		})
	}))
	defer ts.Close()

	c := New(ts.URL)
	self, known, err := c.Register(context.Background(), wire.PlantInfo{PlantID: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if self.RegistrationTime != 42 {
		t.Fatalf("expected the admin-assigned RegistrationTime to be echoed back, got %+v", self)
	}
	if len(known) != 2 {
		t.Fatalf("expected 2 known plants, got %d", len(known))
	}
}

func TestRegisterConflict(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer ts.Close()

	c := New(ts.URL)
	_, _, err := c.Register(context.Background(), wire.PlantInfo{PlantID: 3})
	if _, ok := err.(*rpcerr.RegistrationConflict); !ok {
		t.Fatalf("expected *rpcerr.RegistrationConflict, got %T (%v)", err, err)
	}
}

func TestRegisterUnexpectedStatusIsAdminUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := New(ts.URL)
	_, _, err := c.Register(context.Background(), wire.PlantInfo{PlantID: 3})
	if _, ok := err.(*rpcerr.AdminUnreachable); !ok {
		t.Fatalf("expected *rpcerr.AdminUnreachable, got %T (%v)", err, err)
	}
}
