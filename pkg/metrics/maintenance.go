package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MaintenanceMetrics tracks the cron worker's sweeps over the outbox and the
// abandoned session carts.
type MaintenanceMetrics struct {
	sweeps   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	removed  *prometheus.CounterVec
	skipped  prometheus.Counter
}

// NewMaintenanceMetrics registers the sweep metrics on reg. A nil reg yields
// a no-op recorder.
func NewMaintenanceMetrics(reg prometheus.Registerer) *MaintenanceMetrics {
	if reg == nil {
		return &MaintenanceMetrics{}
	}
	m := &MaintenanceMetrics{
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "audiophile",
			Subsystem: "maintenance",
			Name:      "sweeps_total",
			Help:      "Maintenance sweeps by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "audiophile",
			Subsystem: "maintenance",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one maintenance sweep.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 30, 120, 600},
		}, []string{"job"}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "audiophile",
			Subsystem: "maintenance",
			Name:      "rows_removed_total",
			Help:      "Rows deleted by maintenance sweeps.",
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "audiophile",
			Subsystem: "maintenance",
			Name:      "cycles_skipped_total",
			Help:      "Cycles skipped because another worker held the lease.",
		}),
	}
	reg.MustRegister(m.sweeps, m.duration, m.removed, m.skipped)
	return m
}

// ObserveSweep records one finished sweep. Rows only count on success.
func (m *MaintenanceMetrics) ObserveSweep(job string, took time.Duration, removed int64, err error) {
	if m == nil || m.sweeps == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		m.sweeps.WithLabelValues(job, OutcomeError).Inc()
		return
	}
	m.sweeps.WithLabelValues(job, OutcomeSuccess).Inc()
	if removed > 0 {
		m.removed.WithLabelValues(job).Add(float64(removed))
	}
}

// IncSkipped counts a cycle that lost the lease.
func (m *MaintenanceMetrics) IncSkipped() {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
