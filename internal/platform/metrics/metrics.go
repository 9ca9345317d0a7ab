package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP-level Prometheus metrics for the server.
type Metrics struct {
	EndpointLatency *prometheus.HistogramVec
	Responses       *prometheus.CounterVec
}

// New creates and registers the HTTP metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EndpointLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certledger_http_request_duration_seconds",
			Help:    "Latency of HTTP requests by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		Responses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_http_responses_total",
			Help: "HTTP responses by route pattern and status class",
		}, []string{"endpoint", "class"}),
	}
}

// ObserveEndpointLatency records the duration of a request to endpoint.
func (m *Metrics) ObserveEndpointLatency(endpoint string, d time.Duration) {
	if m != nil {
		m.EndpointLatency.WithLabelValues(endpoint).Observe(d.Seconds())
	}
}

// IncrementResponse counts a response by status class ("2xx", "4xx", ...).
func (m *Metrics) IncrementResponse(endpoint string, status int) {
	if m == nil {
		return
	}
	class := "5xx"
	switch {
	case status < 300:
		class = "2xx"
	case status < 400:
		class = "3xx"
	case status < 500:
		class = "4xx"
	}
	m.Responses.WithLabelValues(endpoint, class).Inc()
}
