// Package prometheus exposes callrelay's Prometheus metrics and the HTTP
// exporter that serves them.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "callrelay"

// Turn outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
)

// Frame kinds.
const (
	FrameGreeting = "greeting"
	FrameContent  = "content"
	FrameTerminal = "terminal"
	FramePingPong = "ping_pong"
)

var (
	// turnsTotal counts answered turns by how they ended.
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of turns answered",
		},
		[]string{"interaction_type", "outcome"},
	)

	// turnDuration is a histogram of time from turn start to terminal frame.
	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration from turn start to terminal frame in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"interaction_type"},
	)

	// framesTotal counts outbound frames.
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of outbound frames written",
		},
		[]string{"kind"},
	)

	// providerRequestDuration is a histogram of streaming completion duration.
	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of LLM provider streaming calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	// providerRequestsTotal is a counter of provider API calls.
	providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of provider API calls",
		},
		[]string{"provider", "model", "status"}, // status: success, error
	)

	// timeToFirstDelta is a histogram of latency to the first non-empty delta.
	timeToFirstDelta = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "time_to_first_delta_seconds",
			Help:      "Latency from request start to the first content delta in seconds",
			Buckets:   []float64{.05, .1, .25, .5, .75, 1, 1.5, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	// sessionsActive is a gauge of open relay sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently open relay sessions",
		},
	)

	// sessionsTotal counts sessions opened.
	sessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of relay sessions opened",
		},
	)

	// inboundEventsTotal counts inbound events by type and whether they were accepted.
	inboundEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Total number of inbound transport events",
		},
		[]string{"interaction_type", "status"}, // status: accepted, rejected
	)

	// invariantViolationsTotal counts frames refused after a turn completed.
	invariantViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invariant_violations_total",
			Help:      "Total number of frames refused because their turn had already completed",
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		turnsTotal,
		turnDuration,
		framesTotal,
		providerRequestDuration,
		providerRequestsTotal,
		timeToFirstDelta,
		sessionsActive,
		sessionsTotal,
		inboundEventsTotal,
		invariantViolationsTotal,
	}
)

// RecordTurn records a finished turn.
func RecordTurn(interactionType, outcome string, durationSeconds float64) {
	turnsTotal.WithLabelValues(interactionType, outcome).Inc()
	turnDuration.WithLabelValues(interactionType).Observe(durationSeconds)
}

// RecordFrame records an outbound frame.
func RecordFrame(kind string) {
	framesTotal.WithLabelValues(kind).Inc()
}

// RecordProviderRequest records a provider API call.
func RecordProviderRequest(provider, model, status string, durationSeconds float64) {
	providerRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	providerRequestsTotal.WithLabelValues(provider, model, status).Inc()
}

// RecordFirstDelta records the latency to the first content delta.
func RecordFirstDelta(provider, model string, latencySeconds float64) {
	timeToFirstDelta.WithLabelValues(provider, model).Observe(latencySeconds)
}

// RecordSessionStart records a session opening.
func RecordSessionStart() {
	sessionsActive.Inc()
	sessionsTotal.Inc()
}

// RecordSessionEnd records a session closing.
func RecordSessionEnd() {
	sessionsActive.Dec()
}

// RecordInboundEvent records an inbound event.
func RecordInboundEvent(interactionType, status string) {
	inboundEventsTotal.WithLabelValues(interactionType, status).Inc()
}

// RecordInvariantViolation records a refused frame.
func RecordInvariantViolation() {
	invariantViolationsTotal.Inc()
}
