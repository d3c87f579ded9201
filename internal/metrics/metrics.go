package metrics

import (
	"net/http"
	"time"

	"github.com/counterpos/counterpos/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "counterpos"

// Metrics holds the collectors of the order and payment core. Each instance
// owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	sequenceAllocations *prometheus.CounterVec
	sequenceLatency     *prometheus.HistogramVec
	paymentTransitions  *prometheus.CounterVec
	webhookOutcomes     *prometheus.CounterVec
	providerCalls       *prometheus.HistogramVec
}

// New builds the collectors and registers them with a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sequenceAllocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sequence",
			Name:      "allocations_total",
			Help:      "Numbers allocated per scope and result.",
		}, []string{"scope", "result"}),
		sequenceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sequence",
			Name:      "allocation_seconds",
			Help:      "Time spent waiting for and incrementing a sequence row.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"scope"}),
		paymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "transitions_total",
			Help:      "Payment state transitions per provider and target status.",
		}, []string{"provider", "status"}),
		webhookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "webhooks_total",
			Help:      "Provider callbacks per provider and outcome.",
		}, []string{"provider", "outcome"}),
		providerCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "provider_call_seconds",
			Help:      "Latency of outbound provider calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sequenceAllocations,
		m.sequenceLatency,
		m.paymentTransitions,
		m.webhookOutcomes,
		m.providerCalls,
	)
	return m
}

// Registry exposes the underlying registry for gathering in tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSequenceAllocation(scope types.SequenceScope, started time.Time, err error) {
	if m == nil {
		return
	}
	m.sequenceAllocations.WithLabelValues(string(scope), result(err)).Inc()
	m.sequenceLatency.WithLabelValues(string(scope)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObservePaymentTransition(provider types.PaymentProvider, status types.PaymentStatus) {
	if m == nil {
		return
	}
	m.paymentTransitions.WithLabelValues(string(provider), string(status)).Inc()
}

func (m *Metrics) ObserveWebhook(provider string, outcome string) {
	if m == nil {
		return
	}
	m.webhookOutcomes.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) ObserveProviderCall(provider types.PaymentProvider, operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(string(provider), operation, result(err)).Observe(time.Since(started).Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
