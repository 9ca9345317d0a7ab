package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitRejections  *prometheus.CounterVec
	RateLimitStoreErrors prometheus.Counter
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RateLimitRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_ratelimit_rejections_total",
			Help: "Requests refused with 429 by route pattern",
		}, []string{"route"}),
		RateLimitStoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "certledger_ratelimit_store_errors_total",
			Help: "Rate limit checks that failed open because the store errored",
		}),
	}
}

func (m *Metrics) IncrementRejections(route string) {
	if m == nil {
		return
	}
	m.RateLimitRejections.WithLabelValues(route).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	if m == nil {
		return
	}
	m.RateLimitStoreErrors.Inc()
}
