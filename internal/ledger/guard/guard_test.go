package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
	"certledger/internal/ledger/memory"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/circuit"
)

type downGateway struct {
	*memory.Ledger
	down bool
}

func (d *downGateway) Count(ctx context.Context) (uint64, error) {
	if d.down {
		return 0, ledger.Unavailable(errors.New("dial tcp: connection refused"), "count")
	}
	return d.Ledger.Count(ctx)
}

func newGuard(t *testing.T, next ledger.Gateway, now *time.Time) (*Gateway, *Metrics) {
	t.Helper()
	m := NewMetricsWith(prometheus.NewRegistry())
	b := circuit.New("ledger",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return *now }),
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(next, WithBreaker(b), WithMetrics(m), WithLogger(logger)), m
}

func TestGuardPassesThrough(t *testing.T) {
	now := time.Now()
	l := memory.New()
	g, m := newGuard(t, l, &now)
	ctx := context.Background()

	require.NoError(t, g.Issue(ctx, models.CertificateRecord{ID: 1, RecipientName: "Ada", CourseName: "Systems"}))
	n, err := g.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	valid, err := g.Verify(ctx, 1)
	require.NoError(t, err)
	assert.True(t, valid)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallOutcome.WithLabelValues("issue", "ok")))
}

func TestGuardOpensOnUnavailableAndFailsFast(t *testing.T) {
	now := time.Now()
	next := &downGateway{Ledger: memory.New(), down: true}
	g, m := newGuard(t, next, &now)
	ctx := context.Background()

	for range 2 {
		_, err := g.Count(ctx)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerOpen))

	// Open breaker refuses without reaching the backend.
	next.down = false
	_, err := g.Count(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	// After the cooldown a probe goes through and closes the breaker.
	now = now.Add(time.Minute)
	n, err := g.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerOpen))
}

func TestGuardRejectionDoesNotTripBreaker(t *testing.T) {
	now := time.Now()
	g, m := newGuard(t, memory.New(), &now)
	ctx := context.Background()

	for range 3 {
		_, err := g.GetRecord(ctx, 9)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerRejected))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CallOutcome.WithLabelValues("get_record", "rejected")))

	_, err := g.Count(ctx)
	assert.NoError(t, err)
}

func TestGuardSubscribe(t *testing.T) {
	now := time.Now()
	g, _ := newGuard(t, memory.New(), &now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := g.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, g.Issue(ctx, models.CertificateRecord{ID: 1, RecipientName: "Ada", CourseName: "Systems"}))

	select {
	case e := <-events:
		assert.Equal(t, ledger.EventIssued, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}
