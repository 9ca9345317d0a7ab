// Package cache mirrors the ledger's certificate records in memory.
//
// The mirror is a point-in-time snapshot. Refresh rebuilds it from position 1
// through the ledger's count and swaps it in whole; a failed refresh leaves the
// previous snapshot untouched.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"certledger/internal/certificate/models"
)

// Source is the read side of the ledger gateway.
type Source interface {
	Count(ctx context.Context) (uint64, error)
	GetRecord(ctx context.Context, id models.CertificateID) (models.CertificateRecord, error)
}

// maxPrealloc caps capacity taken from the ledger's reported count; a bogus
// count must surface as a failed fetch, not an allocation.
const maxPrealloc = 1024

type snapshot struct {
	records     []models.CertificateRecord
	index       map[models.CertificateID]int
	refreshedAt time.Time
}

// Cache is safe for concurrent use. Refreshes are serialized; readers see
// either the old or the new snapshot, never a mix.
type Cache struct {
	source Source

	refreshMu sync.Mutex

	mu   sync.RWMutex
	snap snapshot
}

func New(source Source) *Cache {
	return &Cache{source: source}
}

// Refresh rescans the ledger and replaces the snapshot. It returns the new
// ordered records, or the error of the first failed fetch.
func (c *Cache) Refresh(ctx context.Context) ([]models.CertificateRecord, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	count, err := c.source.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count certificates: %w", err)
	}

	size := int(min(count, maxPrealloc))
	records := make([]models.CertificateRecord, 0, size)
	index := make(map[models.CertificateID]int, size)
	for i := uint64(1); i <= count; i++ {
		record, err := c.source.GetRecord(ctx, models.CertificateID(i))
		if err != nil {
			return nil, fmt.Errorf("fetch certificate %d of %d: %w", i, count, err)
		}
		// Keep the first occurrence so Lookup stays deterministic if the
		// ledger ever reports a repeated id.
		if _, seen := index[record.ID]; !seen {
			index[record.ID] = len(records)
		}
		records = append(records, record)
	}

	next := snapshot{records: records, index: index, refreshedAt: time.Now()}
	c.mu.Lock()
	c.snap = next
	c.mu.Unlock()

	return clone(records), nil
}

// Lookup finds a record in the current snapshot.
func (c *Cache) Lookup(id models.CertificateID) (models.CertificateRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.snap.index[id]
	if !ok {
		return models.CertificateRecord{}, false
	}
	return c.snap.records[i], true
}

// Snapshot returns a copy of the current ordered records.
func (c *Cache) Snapshot() []models.CertificateRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.snap.records)
}

// Len returns the number of records in the current snapshot.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snap.records)
}

// RefreshedAt is the time of the last successful refresh, zero if none.
func (c *Cache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.refreshedAt
}

func clone(records []models.CertificateRecord) []models.CertificateRecord {
	return append([]models.CertificateRecord{}, records...)
}
