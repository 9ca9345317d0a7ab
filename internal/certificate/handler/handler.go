package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certledger/internal/certificate/models"
	"certledger/internal/certificate/service"
	"certledger/internal/certificate/timestamp"
	"certledger/pkg/platform/httputil"
	"certledger/pkg/requestcontext"
)

// Service defines the certificate operations exposed over HTTP.
type Service interface {
	Issue(ctx context.Context, req models.IssueRequest) (*service.IssueResult, error)
	Verify(ctx context.Context, id models.CertificateID) (models.Verdict, error)
	List(ctx context.Context) []models.CertificateRecord
	Get(ctx context.Context, id models.CertificateID) (models.CertificateRecord, error)
	Refresh(ctx context.Context) ([]models.CertificateRecord, error)
}

// Handler wires certificate endpoints to the certificate service.
type Handler struct {
	service Service
	codec   *timestamp.Codec
	logger  *slog.Logger
}

func New(service Service, codec *timestamp.Codec, logger *slog.Logger) *Handler {
	return &Handler{service: service, codec: codec, logger: logger}
}

// Register mounts the read-only endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/certificates", h.HandleList)
	r.Get("/certificates/{id}", h.HandleGet)
	r.Get("/certificates/{id}/verification", h.HandleVerify)
}

// RegisterOperator mounts the mutating endpoints. Callers wrap r with
// operator authentication.
func (h *Handler) RegisterOperator(r chi.Router) {
	r.Post("/certificates", h.HandleIssue)
	r.Post("/certificates/refresh", h.HandleRefresh)
}

// HandleIssue handles POST /certificates.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[IssueCertificateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Issue(ctx, req.ToModel())
	if err != nil {
		h.logger.WarnContext(ctx, "certificate issuance failed",
			"request_id", requestID,
			"certificate_id", req.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	if result.RefreshErr != nil {
		h.logger.ErrorContext(ctx, "certificate issued but cache refresh failed",
			"request_id", requestID,
			"certificate_id", result.Record.ID.String(),
			"error", result.RefreshErr,
		)
	}
	h.logger.InfoContext(ctx, "certificate issue request completed",
		"request_id", requestID,
		"certificate_id", result.Record.ID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, h.fromIssueResult(result))
}

// HandleList handles GET /certificates.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.fromRecords(h.service.List(r.Context())))
}

// HandleGet handles GET /certificates/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.fromRecord(record))
}

// HandleVerify handles GET /certificates/{id}/verification. Every request
// reaches the ledger.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := models.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	verdict, err := h.service.Verify(ctx, id)
	if err != nil {
		h.logger.WarnContext(ctx, "certificate verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"certificate_id", id.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerificationResponse{ID: uint64(id), Result: verdict.String()})
}

// HandleRefresh handles POST /certificates/refresh.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Refresh(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.fromRecords(records))
}
