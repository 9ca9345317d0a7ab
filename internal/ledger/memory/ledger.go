// Package memory is an in-process certificate registry with the same rules as
// the deployed contract. It backs tests and single-process development runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
	"certledger/pkg/platform/sentinel"
)

// Ledger keeps records keyed by caller-assigned id and counts issuances the way
// the contract's certificateCount does.
type Ledger struct {
	mu          sync.RWMutex
	records     map[models.CertificateID]models.CertificateRecord
	count       uint64
	subscribers map[chan ledger.Event]struct{}
}

func New() *Ledger {
	return &Ledger{
		records:     make(map[models.CertificateID]models.CertificateRecord),
		subscribers: make(map[chan ledger.Event]struct{}),
	}
}

func (l *Ledger) Count(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, ledger.Unavailable(err, "count certificates")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count, nil
}

func (l *Ledger) GetRecord(ctx context.Context, id models.CertificateID) (models.CertificateRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.CertificateRecord{}, ledger.Unavailable(err, "get certificate")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	record, ok := l.records[id]
	if !ok {
		return models.CertificateRecord{}, ledger.Rejected(
			fmt.Errorf("certificate %s: %w", id, sentinel.ErrNotFound), "get certificate")
	}
	return record, nil
}

func (l *Ledger) Issue(ctx context.Context, record models.CertificateRecord) error {
	if err := ctx.Err(); err != nil {
		return ledger.Unavailable(err, "issue certificate")
	}
	l.mu.Lock()
	if _, exists := l.records[record.ID]; exists {
		l.mu.Unlock()
		return ledger.Rejected(fmt.Errorf("certificate %s: %w", record.ID, sentinel.ErrConflict), "issue certificate")
	}
	record.IsValid = true
	l.records[record.ID] = record
	l.count++
	l.mu.Unlock()

	l.publish(ledger.Event{
		Kind:          ledger.EventIssued,
		ID:            record.ID,
		RecipientName: record.RecipientName,
		CourseName:    record.CourseName,
		IssueDate:     record.IssueDate,
	})
	return nil
}

func (l *Ledger) Verify(ctx context.Context, id models.CertificateID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, ledger.Unavailable(err, "verify certificate")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records[id].IsValid, nil
}

// Revoke flips a record's validity, standing in for the registry owner's
// revokeCertificate transaction.
func (l *Ledger) Revoke(_ context.Context, id models.CertificateID) error {
	l.mu.Lock()
	record, ok := l.records[id]
	if !ok {
		l.mu.Unlock()
		return ledger.Rejected(fmt.Errorf("certificate %s: %w", id, sentinel.ErrNotFound), "revoke certificate")
	}
	record.IsValid = false
	l.records[id] = record
	l.mu.Unlock()

	l.publish(ledger.Event{Kind: ledger.EventRevoked, ID: id})
	return nil
}

// Subscribe delivers events emitted after the call. Slow subscribers drop
// events rather than block issuance.
func (l *Ledger) Subscribe(ctx context.Context) (<-chan ledger.Event, error) {
	ch := make(chan ledger.Event, 16)
	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subscribers, ch)
		close(ch)
		l.mu.Unlock()
	}()
	return ch, nil
}

func (l *Ledger) publish(event ledger.Event) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for ch := range l.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
