package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceMetricsRecordSweeps(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMaintenanceMetrics(reg)

	m.ObserveSweep("stale-session-carts", 250*time.Millisecond, 12, nil)
	m.ObserveSweep("stale-session-carts", 50*time.Millisecond, 3, nil)
	m.ObserveSweep("outbox-retention", time.Second, 40, errors.New("statement timeout"))
	m.IncSkipped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sweeps.WithLabelValues("stale-session-carts", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweeps.WithLabelValues("outbox-retention", OutcomeError)))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.removed.WithLabelValues("stale-session-carts")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.removed.WithLabelValues("outbox-retention")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "audiophile_maintenance_sweep_duration_seconds", "job", "stale-session-carts")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, sum, 0.0001)
}

func TestNilMaintenanceMetricsAreNoops(t *testing.T) {
	var m *MaintenanceMetrics
	m.ObserveSweep("outbox-retention", time.Second, 1, nil)
	m.IncSkipped()

	NewMaintenanceMetrics(nil).ObserveSweep("", time.Second, 1, nil)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric.GetHistogram().GetSampleSum(), nil
				}
			}
		}
		return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
	}
	return 0, fmt.Errorf("metric %q not found", name)
}
