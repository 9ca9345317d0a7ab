package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger/memory"
	"certledger/internal/platform/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Timezone = "UTC"
	cfg.Audit.Sink = config.AuditSinkMemory
	return &cfg
}

func TestAppIssueListVerify(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	a, err := New(ctx, testConfig(), WithLogger(quietLogger()), WithBackend(backend))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.Warm(ctx))
	assert.Empty(t, a.Service.List(ctx))

	result, err := a.Service.Issue(ctx, models.IssueRequest{
		ID: 1, RecipientName: "Ada Lovelace", CourseName: "Analytical Engines", IssueDate: "2024-01-15",
	})
	require.NoError(t, err)
	require.NoError(t, result.RefreshErr)
	assert.Len(t, result.Certificates, 1)

	require.NoError(t, backend.Revoke(ctx, 1))
	verdict, err := a.Service.Verify(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.Invalid, verdict)

	events, err := a.Audit.List(ctx, "1")
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestAppRouterServesHealthAndMetrics(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Warm(ctx))

	router := a.Router()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "certledger_ledger_calls_total")
}

func TestAppWatcher(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	a, err := New(ctx, cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Nil(t, a.Watcher(), "disabled by default")
	require.NoError(t, a.Close())

	cfg.Ledger.WatchEvents = true
	a, err = New(ctx, cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.NotNil(t, a.Watcher())
}

func TestAppRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Ledger.Backend = "paper"
	_, err := New(context.Background(), cfg, WithLogger(quietLogger()))
	assert.ErrorContains(t, err, "unknown ledger backend")
}

func TestAppWithoutAuditSink(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Sink = config.AuditSinkNone
	a, err := New(context.Background(), cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Nil(t, a.Audit)
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

func TestAppRateLimitsCertificateRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Requests = 1
	a, err := New(context.Background(), cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	router := a.Router()
	codes := make([]int, 0, 2)
	for range 2 {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/certificates", nil))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
