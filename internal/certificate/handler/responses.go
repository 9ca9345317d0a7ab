package handler

import (
	"time"

	"certledger/internal/certificate/models"
	"certledger/internal/certificate/service"
)

// CertificateResponse is one row of the certificate listing.
type CertificateResponse struct {
	ID             uint64 `json:"id"`
	RecipientName  string `json:"recipient_name"`
	CourseName     string `json:"course_name"`
	IssueDate      int64  `json:"issue_date"`
	CompletionDate string `json:"completion_date"`
	IsValid        bool   `json:"is_valid"`
}

type ListResponse struct {
	Certificates []CertificateResponse `json:"certificates"`
	Count        int                   `json:"count"`
}

// IssueResponse is returned with 201 once the ledger accepted the record.
// RefreshError is set when the follow-up rescan failed; Certificates then
// holds the previous snapshot.
type IssueResponse struct {
	Certificate  CertificateResponse   `json:"certificate"`
	Certificates []CertificateResponse `json:"certificates"`
	RefreshError string                `json:"refresh_error,omitempty"`
}

type VerificationResponse struct {
	ID     uint64 `json:"id"`
	Result string `json:"result"`
}

func (h *Handler) fromRecord(r models.CertificateRecord) CertificateResponse {
	return CertificateResponse{
		ID:             uint64(r.ID),
		RecipientName:  r.RecipientName,
		CourseName:     r.CourseName,
		IssueDate:      r.IssueDate,
		CompletionDate: h.formatDate(r.IssueDate),
		IsValid:        r.IsValid,
	}
}

func (h *Handler) fromRecords(records []models.CertificateRecord) ListResponse {
	out := make([]CertificateResponse, 0, len(records))
	for _, r := range records {
		out = append(out, h.fromRecord(r))
	}
	return ListResponse{Certificates: out, Count: len(out)}
}

func (h *Handler) fromIssueResult(result *service.IssueResult) IssueResponse {
	resp := IssueResponse{
		Certificate:  h.fromRecord(result.Record),
		Certificates: h.fromRecords(result.Certificates).Certificates,
	}
	if result.RefreshErr != nil {
		resp.RefreshError = result.RefreshErr.Error()
	}
	return resp
}

func (h *Handler) formatDate(secs int64) string {
	if h.codec == nil {
		return time.Unix(secs, 0).UTC().Format("2006-01-02")
	}
	return h.codec.FormatDate(secs)
}
