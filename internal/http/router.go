// Package httpapi assembles the chi router: platform middleware, health and
// metrics endpoints, and the certificate routes.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certledger/internal/certificate/handler"
	"certledger/internal/platform/metrics"
	"certledger/internal/platform/middleware"
	"certledger/pkg/platform/httputil"
	"certledger/pkg/platform/middleware/metadata"
	"certledger/pkg/platform/middleware/requesttime"
)

// HealthCheck reports a dependency's status; nil means healthy.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Certificates *handler.Handler
	Validator    middleware.JWTValidator
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Checks       map[string]HealthCheck

	// RateLimit wraps every certificate route when set.
	RateLimit func(http.Handler) http.Handler

	// MetricsHandler serves /metrics; nil uses the default Prometheus registry.
	MetricsHandler http.Handler

	// TrustProxyHeaders takes the client IP from X-Forwarded-For/X-Real-IP.
	TrustProxyHeaders bool
}

// NewRouter wires all public endpoints. Mutating certificate routes require an
// operator token.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metricsHandler := d.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	clientMetadata := metadata.ClientMetadata
	if d.TrustProxyHeaders {
		clientMetadata = metadata.ProxiedClientMetadata
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(clientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Latency(d.Metrics))

	r.Get("/health", healthHandler(d.Checks))
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	if d.Certificates != nil {
		r.Group(func(r chi.Router) {
			if d.RateLimit != nil {
				r.Use(d.RateLimit)
			}
			d.Certificates.Register(r)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth(d.Validator, logger))
				d.Certificates.RegisterOperator(r)
			})
		})
	}
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			if err := checks[name](r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
