//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/certificate/cache"
	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/testutil/containers"
)

func TestRedisLedger(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	record := func(id models.CertificateID) models.CertificateRecord {
		return models.CertificateRecord{ID: id, RecipientName: "Ada Lovelace", CourseName: "Analytical Engines", IssueDate: 1705276800, IsValid: true}
	}

	t.Run("empty ledger", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		l := New(rc.Client, WithKeyPrefix("t"))

		n, err := l.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = l.GetRecord(ctx, 1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerRejected))

		ok, err := l.Verify(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("issue, duplicate, revoke", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		l := New(rc.Client, WithKeyPrefix("t"))

		require.NoError(t, l.Issue(ctx, record(1)))
		err := l.Issue(ctx, record(1))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerRejected))

		got, err := l.GetRecord(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, record(1), got)

		require.NoError(t, l.Revoke(ctx, 1))
		ok, err := l.Verify(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := l.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), n)
	})

	t.Run("cache refresh over redis", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		l := New(rc.Client, WithKeyPrefix("t"))
		for _, id := range []models.CertificateID{1, 2, 3} {
			require.NoError(t, l.Issue(ctx, record(id)))
		}
		records, err := cache.New(l).Refresh(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, models.CertificateID(3), records[2].ID)
	})

	t.Run("notifications", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		l := New(rc.Client, WithKeyPrefix("t"))
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		events, err := l.Subscribe(subCtx)
		require.NoError(t, err)

		require.NoError(t, l.Issue(ctx, record(5)))
		require.NoError(t, l.Revoke(ctx, 5))

		var got []ledger.Event
		timeout := time.After(5 * time.Second)
		for len(got) < 2 {
			select {
			case ev := <-events:
				got = append(got, ev)
			case <-timeout:
				t.Fatalf("expected 2 events, got %d", len(got))
			}
		}
		assert.Equal(t, ledger.EventIssued, got[0].Kind)
		assert.Equal(t, "Ada Lovelace", got[0].RecipientName)
		assert.Equal(t, ledger.Event{Kind: ledger.EventRevoked, ID: 5}, got[1])
	})

	t.Run("closed client is unavailable", func(t *testing.T) {
		l := New(rc.Client, WithKeyPrefix("t"))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := l.Count(cctx)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))
	})
}
