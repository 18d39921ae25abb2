// Package metrics declares the Prometheus instruments exposed on the
// status server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Realtime channel metrics
var (
	// ReconnectAttempts counts reconnect attempts after abnormal closes.
	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomlink_reconnect_attempts_total",
			Help: "Reconnect attempts after abnormal connection loss",
		},
	)

	// HeartbeatTimeouts counts pings that never received a pong in time.
	HeartbeatTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomlink_heartbeat_timeouts_total",
			Help: "Heartbeat pings that timed out waiting for a pong",
		},
	)

	// ConnectionState tracks the channel state (0=closed, 1=connecting, 2=open, 3=closing).
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomlink_connection_state",
			Help: "Current channel state (0=closed, 1=connecting, 2=open, 3=closing)",
		},
	)

	// EventsReceived counts inbound collaboration events by kind.
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlink_events_received_total",
			Help: "Inbound collaboration events by kind",
		},
		[]string{"kind"},
	)

	// FramesDropped counts inbound frames discarded before dispatch.
	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlink_frames_dropped_total",
			Help: "Inbound frames dropped by reason (malformed, room_mismatch, unknown_kind)",
		},
		[]string{"reason"},
	)
)

// Reconciliation metrics
var (
	// Refetches counts document refetches by result (applied, stale, error).
	Refetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlink_refetches_total",
			Help: "Document refetches triggered by foreign updates, by result",
		},
		[]string{"result"},
	)
)

// API client metrics
var (
	// APIRequests counts REST calls by endpoint and outcome.
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlink_api_requests_total",
			Help: "REST API requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	// CircuitBreakerState tracks the API circuit breaker (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomlink_api_circuit_breaker_state",
			Help: "Current API circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)
