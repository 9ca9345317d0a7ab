// Package service orchestrates certificate issuance, verification and cache
// maintenance on top of the ledger gateway.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"certledger/internal/certificate/cache"
	"certledger/internal/certificate/metrics"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/timestamp"
	"certledger/internal/ledger"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/audit"
	"certledger/pkg/requestcontext"
)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// IssueResult reports a completed issuance. The ledger write succeeded even
// when RefreshErr is set; Certificates is then the previous snapshot.
type IssueResult struct {
	Record       models.CertificateRecord
	Certificates []models.CertificateRecord
	RefreshErr   error
}

// Service runs one operator action at a time per call: an issuance finishes
// its ledger write before the cache rescan starts.
type Service struct {
	gateway   ledger.Gateway
	cache     *cache.Cache
	codec     *timestamp.Codec
	validator *Validator
	verifier  *Verifier

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(gateway ledger.Gateway, c *cache.Cache, codec *timestamp.Codec, opts ...Option) (*Service, error) {
	if gateway == nil {
		return nil, errors.New("ledger gateway is required")
	}
	if c == nil {
		return nil, errors.New("certificate cache is required")
	}
	if codec == nil {
		return nil, errors.New("timestamp codec is required")
	}
	s := &Service{
		gateway:   gateway,
		cache:     c,
		codec:     codec,
		validator: NewValidator(c, codec),
		verifier:  NewVerifier(gateway),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Codec exposes the date codec so transports render dates the same way the
// validator parses them.
func (s *Service) Codec() *timestamp.Codec {
	return s.codec
}

// Issue validates the candidate, submits it to the ledger and rescans the
// cache. Validation and ledger failures return an error; a failed rescan after
// a successful write is reported in the result.
func (s *Service) Issue(ctx context.Context, req models.IssueRequest) (*IssueResult, error) {
	record, err := s.validator.Validate(ctx, req)
	if err != nil {
		s.rejectIssue(ctx, req.ID, err)
		return nil, err
	}

	if err := s.gateway.Issue(ctx, record); err != nil {
		err = ledger.Classify(err, "issue certificate")
		s.rejectIssue(ctx, record.ID, err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "certificate issued",
		"request_id", requestcontext.RequestID(ctx),
		"certificate_id", record.ID.String(),
		"operator", requestcontext.Operator(ctx),
	)
	s.metrics.IncrementIssueOutcome("issued")
	s.emitAudit(ctx, audit.Event{
		Action:        string(audit.EventCertificateIssued),
		CertificateID: record.ID.String(),
		Decision:      "issued",
	})

	result := &IssueResult{Record: record}
	records, err := s.Refresh(ctx)
	if err != nil {
		result.RefreshErr = err
		result.Certificates = s.cache.Snapshot()
		return result, nil
	}
	result.Certificates = records
	return result, nil
}

// Verify queries the ledger for the record's current validity.
func (s *Service) Verify(ctx context.Context, id models.CertificateID) (models.Verdict, error) {
	verdict, err := s.verifier.Verify(ctx, id)
	if err != nil {
		s.metrics.IncrementVerifyOutcome("error")
		s.logger.WarnContext(ctx, "certificate verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"certificate_id", id.String(),
			"error", err,
		)
		return models.Invalid, err
	}

	s.metrics.IncrementVerifyOutcome(outcomeLabel(verdict))
	s.emitAudit(ctx, audit.Event{
		Action:        string(audit.EventCertificateVerified),
		CertificateID: id.String(),
		Decision:      verdict.String(),
	})
	return verdict, nil
}

// List returns the current snapshot without touching the ledger.
func (s *Service) List(_ context.Context) []models.CertificateRecord {
	return s.cache.Snapshot()
}

// Get returns a cached record.
func (s *Service) Get(_ context.Context, id models.CertificateID) (models.CertificateRecord, error) {
	record, ok := s.cache.Lookup(id)
	if !ok {
		return models.CertificateRecord{}, dErrors.New(dErrors.CodeNotFound, "certificate not found")
	}
	return record, nil
}

// Refresh rescans the ledger. On failure the previous snapshot stays in place
// and the classified error is returned.
func (s *Service) Refresh(ctx context.Context) ([]models.CertificateRecord, error) {
	start := time.Now()
	records, err := s.cache.Refresh(ctx)
	if err != nil {
		err = ledger.Classify(err, "refresh certificate cache")
		s.metrics.IncrementRefreshFailure()
		s.logger.ErrorContext(ctx, "certificate cache refresh failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		s.emitAudit(ctx, audit.Event{
			Action: string(audit.EventCacheRefreshFailed),
			Reason: err.Error(),
		})
		return nil, err
	}
	s.metrics.ObserveRefresh(time.Since(start), len(records))
	s.logger.DebugContext(ctx, "certificate cache refreshed",
		"request_id", requestcontext.RequestID(ctx),
		"records", len(records),
	)
	return records, nil
}

func (s *Service) rejectIssue(ctx context.Context, id models.CertificateID, err error) {
	code := dErrors.CodeOf(err)
	s.metrics.IncrementIssueOutcome(string(code))
	s.logger.WarnContext(ctx, "certificate issuance rejected",
		"request_id", requestcontext.RequestID(ctx),
		"certificate_id", id.String(),
		"code", string(code),
		"error", err,
	)
	s.emitAudit(ctx, audit.Event{
		Action:        string(audit.EventCertificateIssueRejected),
		CertificateID: id.String(),
		Decision:      "rejected",
		Reason:        string(code),
	})
}

// emitAudit fills request metadata and publishes. Audit failures are logged
// and never fail the operation.
func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.Operator(ctx)
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.Timestamp = requestcontext.Now(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"request_id", event.RequestID,
			"action", event.Action,
			"error", err,
		)
	}
}

func outcomeLabel(v models.Verdict) string {
	if v == models.Valid {
		return "valid"
	}
	return "invalid"
}
