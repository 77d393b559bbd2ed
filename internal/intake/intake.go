// Package intake implements the Request Intake subscriber of spec.md
// §4.5: deserializes EnergyRequest JSON off the broker and hands it to
// the Request Processor. It never performs outbound peer RPCs itself
// (spec.md §5).
package intake

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

// Bus is the subset of the MQTT connection the intake subscriber
// needs.
type Bus interface {
	Subscribe(ctx context.Context, topic string, qos byte) error
}

// RequestHandler is the subset of the Request Processor the intake
// subscriber depends on.
type RequestHandler interface {
	HandleNewRequest(req wire.EnergyRequest)
}

// Subscriber wires a message handler for the energy-request topic.
// Duplicate-delivery idempotence is handled downstream, at the
// Election Manager (spec.md §4.5): the first arrival of a requestId
// creates ElectionState, subsequent arrivals that try to re-enter
// Participant are ignored.
type Subscriber struct {
	processor RequestHandler
	logger    *log.Logger
}

// New creates a Subscriber bound to processor.
func New(processor RequestHandler, logger *log.Logger) *Subscriber {
	if logger == nil {
		logger = log.Default()
	}
	return &Subscriber{
		processor: processor,
		logger:    logger,
	}
}

// HandleMessage is registered as the MQTT message handler for the
// energy-request topic. It deserializes JSON into a wire.EnergyRequest,
// drops entries with empty/whitespace requestId (spec.md §4.5,
// rpcerr.MalformedMessage), and otherwise hands the request off:
// enqueue if busy, start an election immediately if idle.
func (s *Subscriber) HandleMessage(_ string, payload []byte) {
	var req wire.EnergyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logger.Printf("intake: dropping malformed payload: %v", err)
		return
	}
	if strings.TrimSpace(req.RequestID) == "" {
		s.logger.Printf("intake: dropping request with empty requestId")
		return
	}

	s.processor.HandleNewRequest(req)
}
