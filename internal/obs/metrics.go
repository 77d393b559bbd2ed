// Package obs holds the Prometheus metrics for both the plant process
// and the administration service, grounded directly on
// control_plane/observability/metrics.go's promauto.NewCounterVec /
// NewGaugeVec / NewHistogram style.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ElectionsStarted counts elections this plant initiated.
	ElectionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desm_elections_started_total",
		Help: "Total number of ring elections initiated by this plant",
	})

	// ElectionsWon counts elections this plant won.
	ElectionsWon = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desm_elections_won_total",
		Help: "Total number of ring elections won by this plant",
	})

	// RingSize tracks the current observed ring size (self + others).
	RingSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desm_ring_size",
		Help: "Current number of plants in the logical ring, as observed by this plant",
	})

	// ProcessorBusy tracks whether the Request Processor is currently
	// fulfilling a request (1) or idle (0).
	ProcessorBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desm_processor_busy",
		Help: "1 if this plant is currently fulfilling a request, 0 if idle",
	})

	// PendingQueueDepth tracks the pending-request queue length.
	PendingQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desm_pending_queue_depth",
		Help: "Current number of requests waiting in the pending queue",
	})

	// PeerRPCFailures counts outbound peer RPC failures by method.
	PeerRPCFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desm_peer_rpc_failures_total",
		Help: "Total outbound peer RPC failures",
	}, []string{"method"})

	// PeerEvictions counts peers removed from the registry after an
	// RPC failure.
	PeerEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desm_peer_evictions_total",
		Help: "Total number of peers evicted from the registry after an unreachable RPC",
	})

	// PollutionAveragesPublished counts individual averages shipped in
	// pollution batches.
	PollutionAveragesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desm_pollution_averages_published_total",
		Help: "Total number of pollution averages published across all batches",
	})

	// AdminRegisteredPlants tracks the number of plants currently known
	// to the administration service.
	AdminRegisteredPlants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desm_admin_registered_plants",
		Help: "Current number of plants registered with the administration service",
	})

	// AdminCO2QueryDuration tracks the latency of CO2 average queries.
	AdminCO2QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "desm_admin_co2_query_duration_seconds",
		Help:    "Latency of GET /statistics/co2/average",
		Buckets: prometheus.DefBuckets,
	})
)
