package pollution

import (
	"sync"

	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

// Buffer is the thread-safe, unbounded append-and-drain queue of
// spec.md §3 (MeasurementBuffer). A sensor goroutine appends;
// an aggregator goroutine drains.
type Buffer struct {
	mu    sync.Mutex
	items []wire.Measurement
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds a measurement.
func (b *Buffer) Append(m wire.Measurement) {
	b.mu.Lock()
	b.items = append(b.items, m)
	b.mu.Unlock()
}

// Drain removes and returns every buffered measurement, in arrival
// order.
func (b *Buffer) Drain() []wire.Measurement {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil
	}
	out := b.items
	b.items = nil
	return out
}
