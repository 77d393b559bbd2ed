package orchestrator

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nic0-o1/DPS-DESM/internal/adminclient"
	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

func TestRegisterWithBackoffRetriesThenSucceeds(t *testing.T) {
	var attempts int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"self":{"plantId":1,"registrationTime":7},"known":[]}`))
	}))
	defer ts.Close()

	admin := adminclient.New(ts.URL)

	orig := backoffBase
	backoffBase = time.Millisecond
	defer func() { backoffBase = orig }()

	self, known, err := registerWithBackoff(context.Background(), admin, wire.PlantInfo{PlantID: 1}, log.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if self.RegistrationTime != 7 {
		t.Fatalf("expected the admin-assigned RegistrationTime to be returned, got %+v", self)
	}
	if known == nil {
		t.Fatalf("expected a non-nil (possibly empty) known-plants slice")
	}
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected at least 3 attempts, got %d", attempts)
	}
}

func TestRegisterWithBackoffStopsOnConflict(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer ts.Close()

	admin := adminclient.New(ts.URL)

	_, _, err := registerWithBackoff(context.Background(), admin, wire.PlantInfo{PlantID: 1}, log.Default())
	if err == nil {
		t.Fatalf("expected a registration conflict error")
	}
}

func TestRegisterWithBackoffRespectsContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	admin := adminclient.New(ts.URL)

	orig := backoffBase
	backoffBase = time.Millisecond
	defer func() { backoffBase = orig }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := registerWithBackoff(ctx, admin, wire.PlantInfo{PlantID: 1}, log.Default())
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
