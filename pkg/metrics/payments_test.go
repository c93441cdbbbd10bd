package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.ObserveCall("paypal", "capture", 120*time.Millisecond, nil)
	m.ObserveCall("paypal", "capture", 80*time.Millisecond, errors.New("timeout"))
	m.IncSettled("stripe", OutcomeIdempotent)
	m.IncOrderCreated("")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("paypal", "capture", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("paypal", "capture", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settled.WithLabelValues("stripe", OutcomeIdempotent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkout.WithLabelValues("unknown")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "payment_provider_call_duration_seconds", "operation", "capture")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, sum, 0.0001)
}

func TestNilPaymentMetricsAreNoops(t *testing.T) {
	var m *PaymentMetrics
	m.ObserveCall("stripe", "create_intent", time.Second, nil)
	m.IncSettled("stripe", OutcomeSuccess)

	unregistered := NewPaymentMetrics(nil)
	unregistered.IncOrderCreated("PayPal")
}
