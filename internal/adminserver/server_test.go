package adminserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

func newTestServer() (*Server, *httptest.Server) {
	store := NewStore()
	feed := NewLiveFeed(store)
	srv := New(store, feed, nil)
	return srv, httptest.NewServer(srv.Handler())
}

func TestHandleRegisterEchoesAssignedRegistrationTime(t *testing.T) {
	_, ts := newTestServer()
	defer ts.Close()

	body, _ := json.Marshal(wire.PlantInfo{PlantID: 1, Port: 9000})
	resp, err := http.Post(ts.URL+"/plants", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var got wire.RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Self.PlantID != 1 {
		t.Fatalf("expected echoed self with plant id 1, got %+v", got.Self)
	}
	if got.Self.RegistrationTime == 0 {
		t.Fatalf("expected a non-zero assigned RegistrationTime to be echoed back, got %+v", got.Self)
	}
}

func TestHandleCO2AverageRejectsInvertedRange(t *testing.T) {
	_, ts := newTestServer()
	defer ts.Close()

	t1 := time.Now().UnixMilli()
	t2 := time.Now().Add(-time.Hour).UnixMilli()

	resp, err := http.Get(ts.URL + "/statistics/co2/average?t1=" + strconv.FormatInt(t1, 10) + "&t2=" + strconv.FormatInt(t2, 10))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 when t1 is after t2, got %d", resp.StatusCode)
	}
}

func TestHandleCO2AverageNoDataIsNotFound(t *testing.T) {
	_, ts := newTestServer()
	defer ts.Close()

	t1 := time.Now().Add(-time.Hour).UnixMilli()
	t2 := time.Now().UnixMilli()

	resp, err := http.Get(ts.URL + "/statistics/co2/average?t1=" + strconv.FormatInt(t1, 10) + "&t2=" + strconv.FormatInt(t2, 10))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 with no samples recorded, got %d", resp.StatusCode)
	}
}
