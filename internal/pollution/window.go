package pollution

import "github.com/nic0-o1/DPS-DESM/internal/wire"

// WindowSize (W) and OverlapDrop (D) implement the sliding window of
// spec.md §4.6: once the window holds at least W items, the mean of
// the first W is emitted and the oldest D are discarded, giving 50%
// overlap between consecutive averages. No measurement participates
// in more than two windows because D == W/2.
const (
	WindowSize  = 8
	OverlapDrop = 4
)

// Window is the pure, transport-independent sliding-window
// aggregator: a FIFO of pending measurements plus the list of
// averages computed so far. Separated from the goroutine that drives
// it (grounded on control_plane/scheduler/queue.go's split between
// queue logic and the scheduler loop), it is independently testable
// and its output is identical whether measurements arrive one at a
// time or in bursts (spec.md §8).
type Window struct {
	pending []wire.Measurement
	output  []float64
}

// NewWindow creates an empty Window.
func NewWindow() *Window {
	return &Window{}
}

// Add appends measurements (one or many) and emits as many averages as
// the accumulated pending items allow, repeating while at least
// WindowSize items remain.
func (w *Window) Add(measurements ...wire.Measurement) {
	w.pending = append(w.pending, measurements...)
	for len(w.pending) >= WindowSize {
		var sum float64
		for _, m := range w.pending[:WindowSize] {
			sum += m.Value
		}
		w.output = append(w.output, sum/float64(WindowSize))
		w.pending = w.pending[OverlapDrop:]
	}
}

// GetAndClear atomically retrieves and clears the output list of
// computed averages, in the order they were computed.
func (w *Window) GetAndClear() []float64 {
	if len(w.output) == 0 {
		return nil
	}
	out := w.output
	w.output = nil
	return out
}

// PendingLen reports how many measurements remain buffered waiting for
// a full window (used by tests).
func (w *Window) PendingLen() int {
	return len(w.pending)
}
