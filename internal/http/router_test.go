package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/certificate/cache"
	"certledger/internal/certificate/handler"
	"certledger/internal/certificate/service"
	"certledger/internal/certificate/timestamp"
	jwttoken "certledger/internal/jwt_token"
	"certledger/internal/ledger/memory"
	"certledger/internal/platform/metrics"
	ratelimit "certledger/internal/ratelimit/middleware"
	"certledger/internal/ratelimit/store/bucket"
	"certledger/pkg/testutil"
)

func newTestRouter(t *testing.T, checks map[string]HealthCheck) (http.Handler, *jwttoken.JWTService) {
	t.Helper()
	l := memory.New()
	codec := timestamp.New(time.UTC)
	svc, err := service.New(l, cache.New(l), codec)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwtSvc := jwttoken.NewJWTService("router-test-key", "certledger", jwttoken.OperatorAudience)
	reg := prometheus.NewRegistry()

	return NewRouter(Deps{
		Certificates:   handler.New(svc, codec, logger),
		Validator:      jwttoken.NewJWTServiceAdapter(jwtSvc),
		Metrics:        metrics.NewWith(reg),
		Logger:         logger,
		Checks:         checks,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}), jwtSvc
}

func TestIssueRequiresOperatorToken(t *testing.T) {
	router, jwtSvc := newTestRouter(t, nil)
	body := handler.IssueCertificateRequest{
		ID: 1, RecipientName: "Ada Lovelace", CourseName: "Analytical Engines", IssueDate: "2024-01-15",
	}

	testutil.Given(t, "no bearer token", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/certificates", body))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	testutil.Given(t, "an operator token", func(t *testing.T) {
		token, err := jwtSvc.GenerateOperatorToken("registrar", time.Hour)
		require.NoError(t, err)

		testutil.When(t, "issuing", func(t *testing.T) {
			req := testutil.WithBearer(testutil.NewJSONRequest(t, http.MethodPost, "/certificates", body), token)
			rr := testutil.DoRequest(router, req)
			assert.Equal(t, http.StatusCreated, rr.Code)
			assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
		})

		testutil.Then(t, "verification asks the ledger", func(t *testing.T) {
			rr := testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/certificates/1/verification", nil))
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.JSONEq(t, `{"id":1,"result":"Valid"}`, rr.Body.String())
		})

		testutil.And(t, "the listing includes the record", func(t *testing.T) {
			rr := testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/certificates", nil))
			list := testutil.UnmarshalResponse[handler.ListResponse](t, rr)
			assert.Equal(t, 1, list.Count)
		})

		testutil.And(t, "reissuing the same id conflicts", func(t *testing.T) {
			req := testutil.WithBearer(testutil.NewJSONRequest(t, http.MethodPost, "/certificates", body), token)
			testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusConflict, "duplicate_id")
		})
	})
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, map[string]HealthCheck{
		"ledger": func(context.Context) error { return nil },
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"ledger":"ok"}}`, w.Body.String())

	router, _ = newTestRouter(t, map[string]HealthCheck{
		"ledger": func(context.Context) error { return errors.New("dial tcp: refused") },
	})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/certificates", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "certledger_http_request_duration_seconds")
}

func newRateLimitedRouter(t *testing.T, trustProxy bool) http.Handler {
	t.Helper()
	l := memory.New()
	codec := timestamp.New(time.UTC)
	svc, err := service.New(l, cache.New(l), codec)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.New(bucket.NewInMemoryBucketStore(), 1, time.Minute, ratelimit.WithLogger(logger))

	return NewRouter(Deps{
		Certificates:      handler.New(svc, codec, logger),
		Validator:         jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService("k", "certledger", jwttoken.OperatorAudience)),
		Logger:            logger,
		RateLimit:         limiter.RateLimit,
		TrustProxyHeaders: trustProxy,
	})
}

func forwardedRequest(forwardedFor string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/certificates", nil)
	req.RemoteAddr = "198.51.100.10:50000"
	req.Header.Set("X-Forwarded-For", forwardedFor)
	return req
}

func TestRateLimitKeysOnConnectionUnlessProxyTrusted(t *testing.T) {
	testutil.Given(t, "forwarding headers are not trusted", func(t *testing.T) {
		router := newRateLimitedRouter(t, false)

		testutil.When(t, "a client rotates X-Forwarded-For", func(t *testing.T) {
			assert.Equal(t, http.StatusOK, testutil.DoRequest(router, forwardedRequest("203.0.113.1")).Code)

			testutil.Then(t, "the second request is still limited", func(t *testing.T) {
				assert.Equal(t, http.StatusTooManyRequests, testutil.DoRequest(router, forwardedRequest("203.0.113.2")).Code)
			})
		})
	})

	testutil.Given(t, "the server sits behind a trusted proxy", func(t *testing.T) {
		router := newRateLimitedRouter(t, true)

		testutil.When(t, "two clients arrive through the same proxy", func(t *testing.T) {
			assert.Equal(t, http.StatusOK, testutil.DoRequest(router, forwardedRequest("203.0.113.1")).Code)

			testutil.Then(t, "each client has its own window", func(t *testing.T) {
				assert.Equal(t, http.StatusOK, testutil.DoRequest(router, forwardedRequest("203.0.113.2")).Code)
				assert.Equal(t, http.StatusTooManyRequests, testutil.DoRequest(router, forwardedRequest("203.0.113.1")).Code)
			})
		})
	})
}

func TestRateLimitCoversCertificateRoutesOnly(t *testing.T) {
	router := newRateLimitedRouter(t, false)

	assert.Equal(t, http.StatusOK, testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/certificates", nil)).Code)
	assert.Equal(t, http.StatusTooManyRequests, testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/certificates", nil)).Code)
	assert.Equal(t, http.StatusOK, testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}
