package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Payment outcomes used as label values.
const (
	OutcomeSuccess    = "success"
	OutcomeIdempotent = "idempotent"
	OutcomeRejected   = "rejected"
	OutcomeError      = "error"
)

// PaymentMetrics records provider calls and settlement outcomes.
type PaymentMetrics struct {
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	settled  *prometheus.CounterVec
	checkout *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_provider_calls_total",
		Help: "Calls to payment providers by operation and outcome.",
	}, []string{"provider", "operation", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_call_duration_seconds",
		Help:    "Latency of payment provider calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_settled_total",
		Help: "Orders driven to paid, by provider and outcome.",
	}, []string{"provider", "outcome"})
	checkout := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders created at checkout by payment method.",
	}, []string{"payment_method"})
	reg.MustRegister(calls, latency, settled, checkout)
	return &PaymentMetrics{
		calls:    calls,
		latency:  latency,
		settled:  settled,
		checkout: checkout,
	}
}

// ObserveCall records one provider call.
func (m *PaymentMetrics) ObserveCall(provider, operation string, took time.Duration, err error) {
	if m == nil || m.calls == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.calls.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation), outcome).Inc()
	m.latency.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Observe(took.Seconds())
}

// IncSettled counts a settlement attempt outcome.
func (m *PaymentMetrics) IncSettled(provider, outcome string) {
	if m == nil || m.settled == nil {
		return
	}
	m.settled.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncOrderCreated counts a checkout submission.
func (m *PaymentMetrics) IncOrderCreated(method string) {
	if m == nil || m.checkout == nil {
		return
	}
	m.checkout.WithLabelValues(normalizeLabel(method)).Inc()
}
