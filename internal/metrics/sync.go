package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stripe-fire-sync/internal/domain"
)

// Sync exposes reconciliation counters. A nil *Sync records nothing.
type Sync struct {
	operations   *prometheus.CounterVec
	passes       *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	lastSuccess  *prometheus.GaugeVec
}

// NewSync creates the collectors and registers them on registerer
// (prometheus.DefaultRegisterer when nil).
func NewSync(registerer prometheus.Registerer) *Sync {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Sync{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stripe_sync_billing_operations_total",
				Help: "Billing provider mutations issued by sync passes.",
			},
			[]string{"collection", "operation", "result"}, // result: ok | error
		),
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stripe_sync_passes_total",
				Help: "Completed sync passes by outcome.",
			},
			[]string{"collection", "status"},
		),
		passDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stripe_sync_pass_duration_seconds",
				Help:    "Wall time of a sync pass including dangling cleanup.",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"collection"},
		),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stripe_sync_last_success_timestamp_seconds",
				Help: "Unix time of the last successful pass per collection.",
			},
			[]string{"collection"},
		),
	}

	registerer.MustRegister(m.operations, m.passes, m.passDuration, m.lastSuccess)
	return m
}

func (m *Sync) ObserveOperation(collection, operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(collection, operation, result).Inc()
}

func (m *Sync) ObservePass(collection, status string, started, finished time.Time) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(collection, status).Inc()
	m.passDuration.WithLabelValues(collection).Observe(finished.Sub(started).Seconds())
	if status == domain.RunStatusSucceeded {
		m.lastSuccess.WithLabelValues(collection).Set(float64(finished.Unix()))
	}
}
