package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewWith(prometheus.NewRegistry())

	m.IncrementIssueOutcome("issued")
	m.IncrementIssueOutcome("duplicate_id")
	m.IncrementIssueOutcome("issued")
	m.IncrementVerifyOutcome("valid")
	m.ObserveRefresh(20*time.Millisecond, 3)
	m.IncrementRefreshFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IssueOutcome.WithLabelValues("issued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IssueOutcome.WithLabelValues("duplicate_id")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VerifyOutcome.WithLabelValues("valid")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SnapshotSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshFailures))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementIssueOutcome("issued")
		m.IncrementVerifyOutcome("invalid")
		m.ObserveRefresh(time.Second, 1)
		m.IncrementRefreshFailure()
	})
}
