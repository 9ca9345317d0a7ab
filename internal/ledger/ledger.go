// Package ledger defines the narrow gateway the certificate core uses to reach the
// external certificate registry, plus the failure classification shared by every
// backend.
package ledger

import (
	"context"
	"errors"

	"certledger/internal/certificate/models"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/sentinel"
)

// Gateway is the registry contract as seen by the core. Implementations may
// block on network round trips and must honour ctx.
type Gateway interface {
	// Count returns the number of records ever issued. Identifiers are assumed
	// dense and 1-based.
	Count(ctx context.Context) (uint64, error)
	// GetRecord fails for an identifier the ledger does not know.
	GetRecord(ctx context.Context, id models.CertificateID) (models.CertificateRecord, error)
	// Issue submits a state-mutating transaction and returns once it is final.
	Issue(ctx context.Context, record models.CertificateRecord) error
	Verify(ctx context.Context, id models.CertificateID) (bool, error)
}

// EventKind distinguishes registry notifications.
type EventKind string

const (
	EventIssued  EventKind = "issued"
	EventRevoked EventKind = "revoked"
)

// Event is a registry notification. Only ID is set for revocations.
type Event struct {
	Kind          EventKind
	ID            models.CertificateID
	RecipientName string
	CourseName    string
	IssueDate     int64
}

// Notifier streams registry notifications until ctx is done. The channel is
// closed when the subscription ends.
type Notifier interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Unavailable marks err as a call that did not complete.
func Unavailable(err error, message string) error {
	if err == nil {
		return nil
	}
	return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, message)
}

// Rejected marks err as a call that completed and reported failure.
func Rejected(err error, message string) error {
	if err == nil {
		return nil
	}
	return dErrors.Wrap(err, dErrors.CodeLedgerRejected, message)
}

// Classify wraps a raw backend error: context and sentinel.ErrUnavailable
// failures are unavailability, already-classified errors pass through, and
// everything else is a rejection.
func Classify(err error, message string) error {
	switch {
	case err == nil:
		return nil
	case dErrors.HasCode(err, dErrors.CodeLedgerUnavailable), dErrors.HasCode(err, dErrors.CodeLedgerRejected):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, sentinel.ErrUnavailable):
		return Unavailable(err, message)
	default:
		return Rejected(err, message)
	}
}
