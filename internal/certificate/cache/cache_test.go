package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
	"certledger/internal/ledger/memory"
	dErrors "certledger/pkg/domain-errors"
)

// flakySource wraps the in-memory ledger and fails the Nth GetRecord call.
type flakySource struct {
	*memory.Ledger
	mu     sync.Mutex
	failAt int
	calls  int
}

func (f *flakySource) GetRecord(ctx context.Context, id models.CertificateID) (models.CertificateRecord, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failAt > 0 && f.calls == f.failAt
	f.mu.Unlock()
	if fail {
		return models.CertificateRecord{}, ledger.Unavailable(errors.New("connection reset"), "get certificate")
	}
	return f.Ledger.GetRecord(ctx, id)
}

// inflatedSource reports a count far beyond what the ledger holds.
type inflatedSource struct {
	*memory.Ledger
	count uint64
}

func (f *inflatedSource) Count(context.Context) (uint64, error) {
	return f.count, nil
}

type CacheSuite struct {
	suite.Suite
	ledger *memory.Ledger
	source *flakySource
	cache  *Cache
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.ledger = memory.New()
	s.source = &flakySource{Ledger: s.ledger}
	s.cache = New(s.source)
}

func (s *CacheSuite) issue(ids ...models.CertificateID) {
	for _, id := range ids {
		s.Require().NoError(s.ledger.Issue(context.Background(), models.CertificateRecord{
			ID:            id,
			RecipientName: "Recipient " + id.String(),
			CourseName:    "Course",
			IssueDate:     1705276800,
		}))
	}
}

func (s *CacheSuite) TestEmptyLedgerYieldsEmptySequence() {
	records, err := s.cache.Refresh(context.Background())
	s.Require().NoError(err)
	s.Empty(records)
	s.Equal(0, s.cache.Len())
	s.False(s.cache.RefreshedAt().IsZero())
}

func (s *CacheSuite) TestRefreshReturnsRecordsInAscendingOrder() {
	s.issue(1, 2, 3)

	records, err := s.cache.Refresh(context.Background())
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	for i, r := range records {
		s.Equal(models.CertificateID(i+1), r.ID)
		s.True(r.IsValid)
	}
	s.Equal(records, s.cache.Snapshot())
}

func (s *CacheSuite) TestFailedFetchKeepsPreviousSnapshot() {
	s.issue(1, 2)
	before, err := s.cache.Refresh(context.Background())
	s.Require().NoError(err)
	refreshedAt := s.cache.RefreshedAt()

	s.issue(3, 4)
	s.source.mu.Lock()
	s.source.calls = 0
	s.source.failAt = 3
	s.source.mu.Unlock()

	records, err := s.cache.Refresh(context.Background())
	s.Require().Error(err)
	s.Nil(records)
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))
	s.Contains(err.Error(), "fetch certificate 3 of 4")

	s.Equal(before, s.cache.Snapshot())
	s.Equal(refreshedAt, s.cache.RefreshedAt())
	_, found := s.cache.Lookup(3)
	s.False(found)
}

func (s *CacheSuite) TestFailedCountKeepsPreviousSnapshot() {
	s.issue(1)
	before, err := s.cache.Refresh(context.Background())
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.cache.Refresh(ctx)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))
	s.Equal(before, s.cache.Snapshot())
}

func (s *CacheSuite) TestImplausibleCountFailsOnFirstMissingRecord() {
	s.issue(1, 2)
	before, err := s.cache.Refresh(context.Background())
	s.Require().NoError(err)

	c := New(&inflatedSource{Ledger: s.ledger, count: 1 << 62})
	c.snap = s.cache.snap

	var records []models.CertificateRecord
	s.Require().NotPanics(func() {
		records, err = c.Refresh(context.Background())
	})
	s.Require().Error(err)
	s.Nil(records)
	s.Contains(err.Error(), "fetch certificate 3 of 4611686018427387904")
	s.Equal(before, c.Snapshot())
}

func (s *CacheSuite) TestLookup() {
	s.issue(1, 2)
	_, err := s.cache.Refresh(context.Background())
	s.Require().NoError(err)

	record, found := s.cache.Lookup(2)
	s.True(found)
	s.Equal("Recipient 2", record.RecipientName)

	_, found = s.cache.Lookup(7)
	s.False(found)
}

func (s *CacheSuite) TestRevocationVisibleAfterRefresh() {
	s.issue(1)
	_, err := s.cache.Refresh(context.Background())
	s.Require().NoError(err)

	s.Require().NoError(s.ledger.Revoke(context.Background(), 1))
	record, _ := s.cache.Lookup(1)
	s.True(record.IsValid, "snapshot is not patched between refreshes")

	_, err = s.cache.Refresh(context.Background())
	s.Require().NoError(err)
	record, _ = s.cache.Lookup(1)
	s.False(record.IsValid)
}

func (s *CacheSuite) TestSnapshotIsACopy() {
	s.issue(1)
	_, err := s.cache.Refresh(context.Background())
	s.Require().NoError(err)

	snap := s.cache.Snapshot()
	snap[0].RecipientName = "mutated"
	record, _ := s.cache.Lookup(1)
	s.Equal("Recipient 1", record.RecipientName)
}

func TestConcurrentRefreshAndReads(t *testing.T) {
	l := memory.New()
	for i := 1; i <= 20; i++ {
		require.NoError(t, l.Issue(context.Background(), models.CertificateRecord{
			ID: models.CertificateID(i), RecipientName: "r", CourseName: "c",
		}))
	}
	c := New(l)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := c.Refresh(context.Background())
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			n := c.Len()
			assert.True(t, n == 0 || n == 20, "observed partial snapshot of %d records", n)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, c.Len())
}
