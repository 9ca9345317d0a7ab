package handler

import (
	"certledger/internal/certificate/models"
	dErrors "certledger/pkg/domain-errors"
)

// IssueCertificateRequest is the HTTP request body for POST /certificates.
// Field rules (date, uniqueness, required names) are enforced by the issuance
// validator so HTTP and CLI callers get identical answers.
type IssueCertificateRequest struct {
	ID            uint64 `json:"id"`
	RecipientName string `json:"recipient_name"`
	CourseName    string `json:"course_name"`
	IssueDate     string `json:"issue_date"`
}

// Validate implements httputil.Validatable.
func (r *IssueCertificateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.RecipientName) > 256 || len(r.CourseName) > 256 {
		return dErrors.New(dErrors.CodeValidation, "names must be at most 256 characters")
	}
	return nil
}

func (r *IssueCertificateRequest) ToModel() models.IssueRequest {
	return models.IssueRequest{
		ID:            models.CertificateID(r.ID),
		RecipientName: r.RecipientName,
		CourseName:    r.CourseName,
		IssueDate:     r.IssueDate,
	}
}
