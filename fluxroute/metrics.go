// Package fluxroute provides a graph-based message routing engine: a DAG of
// decision nodes that dispatches an incoming event to zero or more handler
// functions and runs the matches under a priority-ordered executor.
package fluxroute

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics collection for
// routing engine monitoring in production environments.
//
// Metrics exposed (all namespaced with "fluxroute"):
//
//  1. inflight_traversals (gauge): traversals currently routing.
//  2. queue_depth (gauge): pending handler tasks waiting in the executor.
//  3. keyfunc_latency_ms (histogram): key function evaluation duration.
//  4. route_exceptions_total (counter): RouteException/RouteInternalException outcomes.
//  5. handler_errors_total (counter): handler runtime errors caught by the executor.
//
// Thread-safe: all methods use atomic gauge/counter operations internally.
type PrometheusMetrics struct {
	inflightTraversals prometheus.Gauge
	queueDepth         prometheus.Gauge

	keyfuncLatency *prometheus.HistogramVec

	routeExceptions *prometheus.CounterVec
	handlerErrors   *prometheus.CounterVec

	registry prometheus.Registerer
	mu       sync.RWMutex
	enabled  bool
}

// NewPrometheusMetrics creates and registers all routing engine metrics with
// the provided Prometheus registry. Pass prometheus.DefaultRegisterer for
// the global registry, or a fresh prometheus.NewRegistry() for isolation in
// tests.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.inflightTraversals = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "fluxroute",
		Name:      "inflight_traversals",
		Help:      "Current number of forward() traversals in progress",
	})

	pm.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "fluxroute",
		Name:      "queue_depth",
		Help:      "Number of handler tasks pending in the priority executor",
	})

	pm.keyfuncLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fluxroute",
		Name:      "keyfunc_latency_ms",
		Help:      "Key function evaluation duration in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000},
	}, []string{"key_function", "status"})

	pm.routeExceptions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fluxroute",
		Name:      "route_exceptions_total",
		Help:      "RouteException and RouteInternalException outcomes surfaced during routing",
	}, []string{"kind"}) // kind: route, internal

	pm.handlerErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fluxroute",
		Name:      "handler_errors_total",
		Help:      "Handler runtime errors caught by the priority executor",
	}, []string{"node_id"})

	return pm
}

// RecordKeyFunctionLatency records how long a single key function evaluation
// took, labeled by the key function's name (or "anonymous") and status
// ("ok" or "error").
func (pm *PrometheusMetrics) RecordKeyFunctionLatency(name string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.keyfuncLatency.WithLabelValues(name, status).Observe(float64(latency.Microseconds()) / 1000.0)
}

// UpdateQueueDepth sets the current number of pending executor tasks.
func (pm *PrometheusMetrics) UpdateQueueDepth(depth int) {
	if !pm.isEnabled() {
		return
	}
	pm.queueDepth.Set(float64(depth))
}

// UpdateInflightTraversals sets the current number of in-progress traversals.
func (pm *PrometheusMetrics) UpdateInflightTraversals(count int) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightTraversals.Set(float64(count))
}

// IncrementRouteExceptions increments the route exception counter for the
// given kind ("route" for RouteException, "internal" for RouteInternalException).
func (pm *PrometheusMetrics) IncrementRouteExceptions(kind string) {
	if !pm.isEnabled() {
		return
	}
	pm.routeExceptions.WithLabelValues(kind).Inc()
}

// IncrementHandlerErrors increments the handler error counter for a node.
func (pm *PrometheusMetrics) IncrementHandlerErrors(nodeID string) {
	if !pm.isEnabled() {
		return
	}
	pm.handlerErrors.WithLabelValues(nodeID).Inc()
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// Disable temporarily stops metric recording (useful for benchmarking).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
