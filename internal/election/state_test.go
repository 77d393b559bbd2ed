package election

import (
	"testing"

	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

func TestStatePromoteToParticipantOnlyOnce(t *testing.T) {
	s := newState(wire.EnergyRequest{RequestID: "r1"}, wire.Bid{PlantID: 1, Price: 0.5}, Passive)

	if !s.PromoteToParticipant() {
		t.Fatalf("first promotion should succeed")
	}
	if s.Participation() != Participant {
		t.Fatalf("expected Participant after promotion")
	}
	if s.PromoteToParticipant() {
		t.Fatalf("second promotion should be a no-op")
	}
}

func TestStateTryLatchAnnouncedIsOneWay(t *testing.T) {
	s := newState(wire.EnergyRequest{RequestID: "r1"}, wire.Bid{PlantID: 1, Price: 0.5}, Participant)

	if s.Announced() {
		t.Fatalf("fresh state should not be announced")
	}
	if !s.TryLatchAnnounced() {
		t.Fatalf("first latch attempt should succeed")
	}
	if s.TryLatchAnnounced() {
		t.Fatalf("second latch attempt must fail")
	}
	if !s.Announced() {
		t.Fatalf("state should report announced after a successful latch")
	}
}

func TestStateUpdateBestBidSeen(t *testing.T) {
	s := newState(wire.EnergyRequest{RequestID: "r1"}, wire.Bid{PlantID: 1, Price: 0.5}, Participant)

	if s.BestBidSeen() != wire.NoBid {
		t.Fatalf("expected NoBid as the initial best bid seen")
	}
	b := wire.Bid{PlantID: 2, Price: 0.2}
	s.UpdateBestBidSeen(b)
	if s.BestBidSeen() != b {
		t.Fatalf("expected best bid seen to be updated")
	}
}
