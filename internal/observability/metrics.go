package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatewayctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gatewayctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatewayctl",
			Subsystem: "gateway",
			Name:      "state_transitions_total",
			Help:      "Session state machine transitions.",
		},
		[]string{"from", "to"},
	)
	reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatewayctl",
			Subsystem: "gateway",
			Name:      "reconnects_total",
			Help:      "Connection failures that led to a reconnect, by reason.",
		},
		[]string{"reason"},
	)
	dispatchEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatewayctl",
			Subsystem: "gateway",
			Name:      "dispatch_events_total",
			Help:      "Dispatch events received, by event name.",
		},
		[]string{"event"},
	)
	handlerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatewayctl",
			Subsystem: "gateway",
			Name:      "handler_errors_total",
			Help:      "Errors and panics raised by event handlers.",
		},
		[]string{"event", "kind"},
	)
	heartbeatLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gatewayctl",
			Subsystem: "gateway",
			Name:      "heartbeat_latency_seconds",
			Help:      "Time between a heartbeat and its ack.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			stateTransitions, reconnects, dispatchEvents, handlerErrors, heartbeatLatency,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordStateTransition(from, to string) {
	RegisterMetrics()
	stateTransitions.WithLabelValues(from, to).Inc()
}

func RecordReconnect(reason string) {
	RegisterMetrics()
	reconnects.WithLabelValues(reason).Inc()
}

func RecordDispatch(event string) {
	RegisterMetrics()
	dispatchEvents.WithLabelValues(event).Inc()
}

// RecordHandlerError counts a handler failure; kind is "error" or "panic".
func RecordHandlerError(event, kind string) {
	RegisterMetrics()
	handlerErrors.WithLabelValues(event, kind).Inc()
}

func RecordHeartbeatLatency(latency time.Duration) {
	RegisterMetrics()
	heartbeatLatency.Observe(latency.Seconds())
}
