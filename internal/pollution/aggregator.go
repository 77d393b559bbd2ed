// Package pollution implements the pollution aggregator pipeline of
// spec.md §4.6: a sensor goroutine, a sliding-window aggregator
// goroutine, and a publisher goroutine that wakes every P=10s and
// ships accumulated averages over MQTT at QoS 2.
package pollution

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

// PublishQoS is the "exactly-once" delivery QoS spec.md §4.6 requires
// for pollution batches.
const PublishQoS = 2

// PublishInterval (P) is how often the publisher goroutine wakes.
const PublishInterval = 10 * time.Second

// SensorInterval governs how often the sensor goroutine synthesizes a
// CO2 reading. The spec does not fix this value; it only fixes W, D,
// and P, so we pick something that produces a full window well inside
// a publish interval in normal operation.
const SensorInterval = 500 * time.Millisecond

// Publisher is the subset of the MQTT bus the aggregator uses to ship
// pollution batches.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte) error
}

// Aggregator runs the sensor, window, and publisher goroutines for a
// single plant.
type Aggregator struct {
	plantID int
	topic   string
	bus     Publisher
	logger  *log.Logger

	buffer *Buffer

	windowMu sync.Mutex
	window   *Window

	stop chan struct{}
	wg   sync.WaitGroup

	// rng and sensorFunc are overridable for tests.
	rng        *rand.Rand
	sensorFunc func() float64
}

// New creates an Aggregator for plantID, publishing completed batches
// to topic over bus.
func New(plantID int, topic string, bus Publisher, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.Default()
	}
	a := &Aggregator{
		plantID: plantID,
		topic:   topic,
		bus:     bus,
		logger:  logger,
		buffer:  NewBuffer(),
		window:  NewWindow(),
		stop:    make(chan struct{}),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	a.sensorFunc = a.defaultReading
	return a
}

func (a *Aggregator) defaultReading() float64 {
	// A plausible CO2 reading band for a thermal plant, in
	// arbitrary units; the exact distribution is not specified.
	return 20 + a.rng.Float64()*10
}

// Start launches the sensor, aggregator-drain, and publisher
// goroutines. It returns immediately; call Stop to shut down.
func (a *Aggregator) Start(ctx context.Context) {
	a.wg.Add(3)
	go a.sensorLoop(ctx)
	go a.drainLoop(ctx)
	go a.publishLoop(ctx)
}

// Stop signals all goroutines to exit and waits for them to finish.
func (a *Aggregator) Stop() {
	close(a.stop)
	a.wg.Wait()
}

func (a *Aggregator) sensorLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(SensorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-ticker.C:
			a.buffer.Append(wire.Measurement{Value: a.sensorFunc(), Timestamp: time.Now()})
		}
	}
}

// drainLoop periodically moves measurements from the buffer into the
// sliding window. The window itself decides when enough have
// accumulated to emit an average.
func (a *Aggregator) drainLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(SensorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-ticker.C:
			measurements := a.buffer.Drain()
			if len(measurements) == 0 {
				continue
			}
			a.windowMu.Lock()
			a.window.Add(measurements...)
			a.windowMu.Unlock()
		}
	}
}

func (a *Aggregator) publishLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(PublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-ticker.C:
			a.publishOnce(ctx)
		}
	}
}

func (a *Aggregator) publishOnce(ctx context.Context) {
	a.windowMu.Lock()
	averages := a.window.GetAndClear()
	a.windowMu.Unlock()

	if len(averages) == 0 {
		return
	}

	batch := wire.PollutionBatch{
		PlantID:                  a.plantID,
		ListComputationTimestamp: time.Now().UnixMilli(),
		Averages:                 averages,
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		a.logger.Printf("pollution: failed to marshal batch: %v", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.bus.Publish(pubCtx, a.topic, payload, PublishQoS); err != nil {
		// spec.md §7: BrokerUnavailable -- log and rely on
		// reconnect, dropped publishes are not retried here.
		a.logger.Printf("pollution: publish failed, batch dropped: %v", err)
	}
}
