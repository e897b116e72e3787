package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EscrowTransitions counts committed ledger transitions by edge.
	EscrowTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_transitions_total",
		Help: "Committed escrow payment status transitions.",
	}, []string{"from", "to"})

	// WebhookEvents counts inbound gateway events by type and outcome
	// (applied, duplicate, stale, unknown, invalid_signature).
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_webhook_events_total",
		Help: "Inbound payment gateway webhook events.",
	}, []string{"type", "outcome"})

	// GatewayCalls counts outbound gateway calls by operation and result.
	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_calls_total",
		Help: "Outbound calls to the payment gateway.",
	}, []string{"op", "result"})

	// HTTPRequestDuration observes request latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
