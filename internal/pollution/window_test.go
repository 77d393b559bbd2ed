package pollution

import (
	"testing"
	"time"

	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

func measurements(values ...float64) []wire.Measurement {
	out := make([]wire.Measurement, len(values))
	for i, v := range values {
		out[i] = wire.Measurement{Value: v, Timestamp: time.Unix(int64(i), 0)}
	}
	return out
}

func TestWindowEmitsAfterWindowSizeReached(t *testing.T) {
	w := NewWindow()
	w.Add(measurements(1, 2, 3, 4, 5, 6, 7)...)

	if got := w.GetAndClear(); got != nil {
		t.Fatalf("expected no output before WindowSize items accumulate, got %v", got)
	}
	if w.PendingLen() != 7 {
		t.Fatalf("expected 7 pending items, got %d", w.PendingLen())
	}

	w.Add(measurements(8)[0])
	out := w.GetAndClear()
	if len(out) != 1 {
		t.Fatalf("expected exactly one average, got %v", out)
	}
	want := (1 + 2 + 3 + 4 + 5 + 6 + 7 + 8) / 8.0
	if out[0] != want {
		t.Fatalf("expected average %v, got %v", want, out[0])
	}
	if w.PendingLen() != OverlapDrop {
		t.Fatalf("expected %d items retained for overlap, got %d", OverlapDrop, w.PendingLen())
	}
}

func TestWindowOverlapBetweenConsecutiveAverages(t *testing.T) {
	w := NewWindow()
	// 12 items produce two overlapping averages: [0..7], then, after
	// the oldest 4 are dropped, [4..11]; dropping 4 more leaves items
	// [8..11] pending, 4 total.
	vals := make([]float64, 12)
	for i := range vals {
		vals[i] = float64(i)
	}
	w.Add(measurements(vals...)...)

	out := w.GetAndClear()
	if len(out) != 2 {
		t.Fatalf("expected exactly two averages from 12 items (W=8,D=4), got %d", len(out))
	}
	firstWant := (0 + 1 + 2 + 3 + 4 + 5 + 6 + 7) / 8.0
	if out[0] != firstWant {
		t.Fatalf("expected first average %v, got %v", firstWant, out[0])
	}
	secondWant := (4 + 5 + 6 + 7 + 8 + 9 + 10 + 11) / 8.0
	if out[1] != secondWant {
		t.Fatalf("expected second average %v, got %v", secondWant, out[1])
	}
	if w.PendingLen() != 4 {
		t.Fatalf("expected 4 pending items, got %d", w.PendingLen())
	}
}

func TestGetAndClearResetsOutput(t *testing.T) {
	w := NewWindow()
	w.Add(measurements(1, 2, 3, 4, 5, 6, 7, 8)...)
	first := w.GetAndClear()
	if len(first) != 1 {
		t.Fatalf("expected one average")
	}
	second := w.GetAndClear()
	if second != nil {
		t.Fatalf("expected nil on second call with no new data, got %v", second)
	}
}
