package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks gateway metering counters.
//
// Metrics:
//   - cinder_requests_admitted_total: requests admitted by the throttle gate
//   - cinder_requests_denied_total: requests denied by the throttle gate
//   - cinder_throttle_failopen_total: throttle checks that failed open on store faults
//   - cinder_requests_unpriced_total: requests with no matching pricing entry
//   - cinder_streams_malformed_total: streamed responses aborted during reduction
//   - cinder_billing_dropped_total: billing records shed under congestion
//   - cinder_billing_queue_depth: last sampled billing queue depth
//   - cinder_billing_degraded: 1 when the billing queue is congested
type Metrics struct {
	registry *prometheus.Registry

	admitted         prometheus.Counter
	denied           prometheus.Counter
	failOpen         prometheus.Counter
	unpriced         *prometheus.CounterVec
	malformedStreams *prometheus.CounterVec
	billingDropped   prometheus.Counter
	queueDepth       prometheus.Gauge
	degraded         prometheus.Gauge
}

// NewMetrics creates the gateway metrics collector with its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinder_requests_admitted_total",
			Help: "Total requests admitted by the throttle gate.",
		}),
		denied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinder_requests_denied_total",
			Help: "Total requests denied by the throttle gate.",
		}),
		failOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinder_throttle_failopen_total",
			Help: "Total throttle checks admitted because the counter store was unreachable.",
		}),
		unpriced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinder_requests_unpriced_total",
			Help: "Total requests with no matching pricing catalog entry.",
		}, []string{"provider", "model"}),
		malformedStreams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinder_streams_malformed_total",
			Help: "Total streamed responses whose reduction was aborted as malformed.",
		}, []string{"provider"}),
		billingDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinder_billing_dropped_total",
			Help: "Total billing records shed because the billing queue was congested.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cinder_billing_queue_depth",
			Help: "Last sampled billing queue depth.",
		}),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cinder_billing_degraded",
			Help: "1 when the billing queue depth exceeds the congestion threshold.",
		}),
	}

	registry.MustRegister(
		m.admitted,
		m.denied,
		m.failOpen,
		m.unpriced,
		m.malformedStreams,
		m.billingDropped,
		m.queueDepth,
		m.degraded,
	)

	return m
}

// RecordAdmitted increments the admitted request counter.
func (m *Metrics) RecordAdmitted() { m.admitted.Inc() }

// RecordDenied increments the denied request counter.
func (m *Metrics) RecordDenied() { m.denied.Inc() }

// RecordFailOpen increments the fail-open counter.
func (m *Metrics) RecordFailOpen() { m.failOpen.Inc() }

// RecordUnpriced increments the unpriced request counter for a provider/model.
func (m *Metrics) RecordUnpriced(provider, model string) {
	m.unpriced.WithLabelValues(provider, model).Inc()
}

// RecordMalformedStream increments the malformed stream counter for a provider.
func (m *Metrics) RecordMalformedStream(provider string) {
	m.malformedStreams.WithLabelValues(provider).Inc()
}

// RecordBillingDropped increments the shed billing record counter.
func (m *Metrics) RecordBillingDropped() { m.billingDropped.Inc() }

// SetQueueDepth records the last sampled billing queue depth.
func (m *Metrics) SetQueueDepth(depth int64) { m.queueDepth.Set(float64(depth)) }

// SetDegraded records the congestion state.
func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.degraded.Set(1)
		return
	}
	m.degraded.Set(0)
}

// Handler returns an HTTP handler exposing the registry in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
