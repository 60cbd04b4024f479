// Package handler exposes verification, ranking and trust configuration over
// HTTP. Every route requires a bearer token; routes under /v1/admin also
// require the admin role.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"verity/internal/platform/middleware"
	"verity/internal/trust"
	"verity/internal/trust/settings"
	"verity/internal/verification/models"
	"verity/internal/verification/service"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/httputil"
	"verity/pkg/requestcontext"
)

// Service is the verification core as seen by the transport.
type Service interface {
	Submit(ctx context.Context, in service.SubmitInput) (*models.Record, error)
	Resubmit(ctx context.Context, in service.SubmitInput) (*models.Record, error)
	GetStatus(ctx context.Context, reviewID uuid.UUID) (*models.Record, error)
	GetRankScore(ctx context.Context, reviewID uuid.UUID) (*service.Rank, error)
	History(ctx context.Context, recordID uuid.UUID) ([]*models.HistoryEntry, error)
	Revoke(ctx context.Context, recordID uuid.UUID, reason string) (*models.Record, error)
	Approve(ctx context.Context, recordID uuid.UUID, note string) (*models.Record, error)
	Reject(ctx context.Context, recordID uuid.UUID, reason string) (*models.Record, error)
	CancelRequest(ctx context.Context, requestID uuid.UUID) (*models.Request, error)
	RegistryAudit(ctx context.Context, recordID uuid.UUID) ([]*models.RegistryAuditEntry, error)
}

// TrustSettings reads and writes trust configuration.
type TrustSettings interface {
	Resolve(ctx context.Context, orgID *uuid.UUID) (*trust.Config, error)
	Update(ctx context.Context, orgID *uuid.UUID, upd settings.Update, actorID uuid.UUID) (*trust.Config, error)
}

type Handler struct {
	service   Service
	settings  TrustSettings
	validator middleware.TokenValidator
	adminRole string
	logger    *slog.Logger
}

func New(svc Service, trustSettings TrustSettings, validator middleware.TokenValidator, adminRole string, logger *slog.Logger) *Handler {
	return &Handler{
		service:   svc,
		settings:  trustSettings,
		validator: validator,
		adminRole: adminRole,
		logger:    logger,
	}
}

// Register mounts the /v1 routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.adminRole, h.logger))

		r.Post("/reviews/{reviewID}/verification", h.handleSubmit)
		r.Post("/reviews/{reviewID}/verification/resubmit", h.handleResubmit)
		r.Get("/reviews/{reviewID}/verification", h.handleStatus)
		r.Get("/reviews/{reviewID}/rank-score", h.handleRankScore)
		r.Get("/verifications/{recordID}/history", h.handleHistory)
		r.Get("/organizations/{orgID}/trust-config", h.handleGetTrustConfig)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(h.logger))
			r.Post("/verifications/{recordID}/revoke", h.handleRevoke)
			r.Post("/verifications/{recordID}/approve", h.handleApprove)
			r.Post("/verifications/{recordID}/reject", h.handleReject)
			r.Get("/verifications/{recordID}/registry-audit", h.handleRegistryAudit)
			r.Delete("/verification-requests/{requestID}", h.handleCancelRequest)
			r.Put("/organizations/{orgID}/trust-config", h.handlePutTrustConfig)
		})
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.service.Submit, http.StatusCreated)
}

func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.service.Resubmit, http.StatusOK)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request,
	op func(context.Context, service.SubmitInput) (*models.Record, error), status int) {
	ctx := r.Context()
	reviewID, ok := h.pathID(w, r, "reviewID")
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[submitRequest](r)
	if err != nil {
		h.fail(ctx, w, err, "invalid submission body")
		return
	}
	if !req.Method.IsValid() {
		h.fail(ctx, w, dErrors.New(dErrors.CodeValidation, "unknown verification method"), "invalid submission")
		return
	}

	rec, err := op(ctx, service.SubmitInput{
		ReviewID: reviewID,
		Method:   req.Method,
		Evidence: req.Evidence,
		Priority: req.Priority,
	})
	if err != nil {
		h.fail(ctx, w, err, "verification submission failed")
		return
	}
	httputil.WriteJSON(w, status, toRecordResponse(rec, true))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := h.pathID(w, r, "reviewID")
	if !ok {
		return
	}
	ctx := r.Context()
	rec, err := h.service.GetStatus(ctx, reviewID)
	if err != nil {
		h.fail(ctx, w, err, "verification status lookup failed")
		return
	}
	// Evidence is visible to the submitter and admins only.
	owner := rec.UserID == requestcontext.UserID(ctx) || requestcontext.IsAdmin(ctx)
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec, owner))
}

func (h *Handler) handleRankScore(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := h.pathID(w, r, "reviewID")
	if !ok {
		return
	}
	rank, err := h.service.GetRankScore(r.Context(), reviewID)
	if err != nil {
		h.fail(r.Context(), w, err, "rank score failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRankResponse(rank))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	recordID, ok := h.pathID(w, r, "recordID")
	if !ok {
		return
	}
	entries, err := h.service.History(r.Context(), recordID)
	if err != nil {
		h.fail(r.Context(), w, err, "history lookup failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"history": toHistoryResponse(entries)})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Revoke)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Reject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request,
	op func(context.Context, uuid.UUID, string) (*models.Record, error)) {
	ctx := r.Context()
	recordID, ok := h.pathID(w, r, "recordID")
	if !ok {
		return
	}
	var reason string
	if r.ContentLength != 0 {
		req, err := httputil.DecodeJSON[decisionRequest](r)
		if err != nil {
			h.fail(ctx, w, err, "invalid decision body")
			return
		}
		reason = req.Reason
	}
	rec, err := op(ctx, recordID, reason)
	if err != nil {
		h.fail(ctx, w, err, "admin decision failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec, true))
}

func (h *Handler) handleRegistryAudit(w http.ResponseWriter, r *http.Request) {
	recordID, ok := h.pathID(w, r, "recordID")
	if !ok {
		return
	}
	entries, err := h.service.RegistryAudit(r.Context(), recordID)
	if err != nil {
		h.fail(r.Context(), w, err, "registry audit lookup failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"calls": toAuditResponse(entries)})
}

func (h *Handler) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.pathID(w, r, "requestID")
	if !ok {
		return
	}
	req, err := h.service.CancelRequest(r.Context(), requestID)
	if err != nil {
		h.fail(r.Context(), w, err, "request cancellation failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, requestResponse{
		ID:          req.ID,
		RecordID:    req.RecordID,
		Status:      req.Status,
		Attempts:    req.Attempts,
		MaxAttempts: req.MaxAttempts,
		CompletedAt: req.CompletedAt,
	})
}

func (h *Handler) handleGetTrustConfig(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	cfg, err := h.settings.Resolve(r.Context(), orgID)
	if err != nil {
		h.fail(r.Context(), w, err, "trust config lookup failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTrustConfigResponse(cfg))
}

func (h *Handler) handlePutTrustConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[trustConfigRequest](r)
	if err != nil {
		h.fail(ctx, w, err, "invalid trust config body")
		return
	}
	cfg, err := h.settings.Update(ctx, orgID, req.toUpdate(), requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, err, "trust config update failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTrustConfigResponse(cfg))
}

// orgID parses the orgID path segment; "default" addresses the global row.
func (h *Handler) orgID(w http.ResponseWriter, r *http.Request) (*uuid.UUID, bool) {
	if chi.URLParam(r, "orgID") == "default" {
		return nil, true
	}
	id, ok := h.pathID(w, r, "orgID")
	if !ok {
		return nil, false
	}
	return &id, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// fail logs and renders err. Client errors log at warn, everything else at error.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	attrs := []any{
		"error", err,
		"user_id", requestcontext.UserID(ctx),
		"request_id", requestcontext.RequestID(ctx),
	}
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
