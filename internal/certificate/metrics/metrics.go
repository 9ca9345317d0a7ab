package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for certificate issuance, verification and
// cache maintenance.
type Metrics struct {
	// Issuance outcomes: issued, invalid_date, duplicate_id, validation_error,
	// ledger_rejected, ledger_unavailable
	IssueOutcome *prometheus.CounterVec

	// Verification outcomes: valid, invalid, error
	VerifyOutcome *prometheus.CounterVec

	RefreshDuration prometheus.Histogram
	RefreshFailures prometheus.Counter

	// Records in the current cache snapshot
	SnapshotSize prometheus.Gauge
}

// New creates a Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the certificate metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IssueOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_certificate_issue_total",
			Help: "Certificate issuance attempts by outcome",
		}, []string{"outcome"}),

		VerifyOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_certificate_verify_total",
			Help: "Certificate verification queries by outcome",
		}, []string{"outcome"}),

		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certledger_cache_refresh_duration_seconds",
			Help:    "Duration of full certificate cache rescans",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		RefreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "certledger_cache_refresh_failures_total",
			Help: "Cache refreshes aborted because a ledger read failed",
		}),

		SnapshotSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "certledger_cache_snapshot_records",
			Help: "Number of certificate records in the current cache snapshot",
		}),
	}
}

func (m *Metrics) IncrementIssueOutcome(outcome string) {
	if m != nil {
		m.IssueOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementVerifyOutcome(outcome string) {
	if m != nil {
		m.VerifyOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveRefresh records a completed refresh and the resulting snapshot size.
func (m *Metrics) ObserveRefresh(d time.Duration, records int) {
	if m != nil {
		m.RefreshDuration.Observe(d.Seconds())
		m.SnapshotSize.Set(float64(records))
	}
}

func (m *Metrics) IncrementRefreshFailure() {
	if m != nil {
		m.RefreshFailures.Inc()
	}
}
