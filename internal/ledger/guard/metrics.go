package guard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks ledger round trips by operation and outcome.
type Metrics struct {
	CallDuration *prometheus.HistogramVec
	CallOutcome  *prometheus.CounterVec
	BreakerOpen  prometheus.Gauge
}

// NewMetrics registers ledger metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers ledger metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certledger_ledger_call_duration_seconds",
			Help:    "Duration of ledger gateway calls by operation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30},
		}, []string{"operation"}),
		CallOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_ledger_calls_total",
			Help: "Ledger gateway calls by operation and outcome (ok, rejected, unavailable)",
		}, []string{"operation", "outcome"}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "certledger_ledger_breaker_open",
			Help: "1 while the ledger circuit breaker is open",
		}),
	}
}

func (m *Metrics) observe(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CallDuration.WithLabelValues(op).Observe(d.Seconds())
	m.CallOutcome.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
