package service

import (
	"context"
	"fmt"

	"certledger/internal/certificate/models"
	"certledger/internal/certificate/timestamp"
	dErrors "certledger/pkg/domain-errors"
)

// Lookup answers whether the local mirror already holds an identifier.
type Lookup interface {
	Lookup(id models.CertificateID) (models.CertificateRecord, bool)
}

// Validator gates an issuance candidate before any ledger call. The duplicate
// check is advisory: it sees only the last snapshot, and the ledger remains the
// final arbiter of uniqueness.
type Validator struct {
	known Lookup
	codec *timestamp.Codec
}

func NewValidator(known Lookup, codec *timestamp.Codec) *Validator {
	return &Validator{known: known, codec: codec}
}

// Validate runs the gates in order (date, duplicate, shape) and stops at the
// first failure. On success the record is ready for Gateway.Issue.
func (v *Validator) Validate(_ context.Context, candidate models.IssueRequest) (models.CertificateRecord, error) {
	candidate.Normalize()

	issueDate, err := v.codec.ToLedger(candidate.IssueDate)
	if err != nil {
		return models.CertificateRecord{}, err
	}

	if _, exists := v.known.Lookup(candidate.ID); exists {
		return models.CertificateRecord{}, dErrors.New(dErrors.CodeDuplicateID,
			fmt.Sprintf("certificate id %s already exists", candidate.ID))
	}

	if err := candidate.Validate(); err != nil {
		return models.CertificateRecord{}, err
	}

	return models.CertificateRecord{
		ID:            candidate.ID,
		RecipientName: candidate.RecipientName,
		CourseName:    candidate.CourseName,
		IssueDate:     issueDate,
		IsValid:       true,
	}, nil
}
