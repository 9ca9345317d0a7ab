package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so stores can
// apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers ledger mutations an auditor must be able to reconstruct.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected or unauthorized operator actions.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine reads and cache maintenance.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from certificate services to capture operator actions. Keep
// it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category      EventCategory
	Timestamp     time.Time
	Action        string
	CertificateID string
	// ActorID is the operator subject from the bearer token, or the CLI user.
	ActorID   string
	Decision  string
	Reason    string
	RequestID string
}

type AuditEvent string

const (
	EventCertificateIssued         AuditEvent = "certificate_issued"
	EventCertificateIssueRejected  AuditEvent = "certificate_issue_rejected"
	EventCertificateVerified       AuditEvent = "certificate_verified"
	EventCertificateCacheRefreshed AuditEvent = "certificate_cache_refreshed"
	EventCacheRefreshFailed        AuditEvent = "certificate_cache_refresh_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCertificateIssued:         CategoryCompliance,
	EventCertificateIssueRejected:  CategorySecurity,
	EventCertificateVerified:       CategoryOperations,
	EventCertificateCacheRefreshed: CategoryOperations,
	EventCacheRefreshFailed:        CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by stores that can be queried back.
type Lister interface {
	ListByCertificate(ctx context.Context, certificateID string) ([]Event, error)
}
