package models

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "certledger/pkg/domain-errors"
)

// CertificateID is the caller-assigned, 1-based ledger identifier.
type CertificateID uint64

// ParseCertificateID parses a positive decimal identifier.
func ParseCertificateID(s string) (CertificateID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || v == 0 {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("certificate id must be a positive integer, got %q", s))
	}
	return CertificateID(v), nil
}

func (id CertificateID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// CertificateRecord is one ledger entry. IsValid is owned by the ledger: the
// client reads it and never writes it.
type CertificateRecord struct {
	ID            CertificateID
	RecipientName string
	CourseName    string
	IssueDate     int64 // seconds since epoch
	IsValid       bool
}

// IssueRequest is the operator's candidate before validation. IssueDate is the
// raw calendar text as typed.
type IssueRequest struct {
	ID            CertificateID `json:"id"`
	RecipientName string        `json:"recipient_name"`
	CourseName    string        `json:"course_name"`
	IssueDate     string        `json:"issue_date"`
}

func (r *IssueRequest) Normalize() {
	r.RecipientName = strings.TrimSpace(r.RecipientName)
	r.CourseName = strings.TrimSpace(r.CourseName)
	r.IssueDate = strings.TrimSpace(r.IssueDate)
}

// Validate checks the fields that make a record well-formed. Date parsing and
// uniqueness are gated separately by the issuance validator.
func (r *IssueRequest) Validate() error {
	if r.ID == 0 {
		return dErrors.New(dErrors.CodeValidation, "certificate id must be a positive integer")
	}
	if r.RecipientName == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient name is required")
	}
	if r.CourseName == "" {
		return dErrors.New(dErrors.CodeValidation, "course name is required")
	}
	return nil
}

// Verdict is the outcome of a ledger validity query.
type Verdict bool

const (
	Valid   Verdict = true
	Invalid Verdict = false
)

func (v Verdict) String() string {
	if v {
		return "Valid"
	}
	return "Invalid"
}
