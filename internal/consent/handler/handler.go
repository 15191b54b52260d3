// Package handler exposes the consent engine over HTTP. Subject identity
// is resolved server-side: the bearer token supplies the user ID and the
// connection supplies IP and User-Agent for anonymous visitors.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"platewatch/internal/audit"
	"platewatch/internal/consent/models"
	"platewatch/internal/platform/middleware"
	respond "platewatch/internal/transport/http/json"
	"platewatch/internal/transport/http/shared"
	dErrors "platewatch/pkg/domain-errors"
)

// Service defines the consent operations the handler fronts.
type Service interface {
	Verify(ctx context.Context, req models.VerificationRequest) (*models.VerificationResult, error)
	StoreConsent(ctx context.Context, req models.StoreRequest) (*models.Record, error)
	Withdraw(ctx context.Context, userID string, consentType models.ConsentType, reason string) (*models.Record, error)
	Status(ctx context.Context, userID string) (*models.StatusReport, error)
}

// AuditReader lists audit entries for a subject, backing the data-access
// endpoint.
type AuditReader interface {
	ListBySubject(ctx context.Context, subjectKey string) ([]audit.Entry, error)
}

// Handler handles consent-related endpoints.
type Handler struct {
	logger  *slog.Logger
	consent Service
	trail   AuditReader
}

// New creates a new consent Handler.
func New(consent Service, trail AuditReader, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		consent: consent,
		trail:   trail,
	}
}

// Register registers the consent routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/consent/verify", h.handleVerify)
	r.Post("/consent", h.handleStore)
	r.Post("/consent/withdraw", h.handleWithdraw)
	r.Get("/consent/status", h.handleStatus)
	r.Get("/consent/audit", h.handleAuditTrail)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode verify request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.consent.Verify(ctx, req.toModel(
		middleware.GetUserID(ctx),
		middleware.GetClientIP(ctx),
		middleware.GetUserAgent(ctx),
	))
	if err != nil {
		h.logger.ErrorContext(ctx, "consent verification failed",
			"request_id", middleware.GetRequestID(ctx),
			"operation", req.Operation,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode store consent request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.consent.StoreConsent(ctx, req.toModel(
		middleware.GetUserID(ctx),
		middleware.GetClientIP(ctx),
		middleware.GetUserAgent(ctx),
	))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to store consent",
			"request_id", middleware.GetRequestID(ctx),
			"consent_type", req.ConsentType,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	message := "Consent declined for " + req.ConsentType
	if req.ConsentGiven {
		message = "Consent granted for " + req.ConsentType
	}
	respond.WriteJSON(w, http.StatusCreated, storeResponse{Record: record, Message: message})
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "withdrawal requires an authenticated user"))
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode withdraw request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.consent.Withdraw(ctx, userID, models.ConsentType(req.ConsentType), req.Reason)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to withdraw consent",
			"request_id", middleware.GetRequestID(ctx),
			"consent_type", req.ConsentType,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, withdrawResponse{
		Record:  record,
		Message: "Consent withdrawn for " + req.ConsentType,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "status requires an authenticated user"))
		return
	}

	report, err := h.consent.Status(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load consent status",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, report)
}

// handleAuditTrail returns the caller's own audit history. Anonymous
// visitors see entries keyed by their current IP address.
func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjectKey := middleware.GetUserID(ctx)
	if subjectKey == "" {
		subjectKey = middleware.GetClientIP(ctx)
	}
	if subjectKey == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "could not identify request subject"))
		return
	}

	entries, err := h.trail.ListBySubject(ctx, subjectKey)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load audit trail",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}

	respond.WriteJSON(w, http.StatusOK, auditTrailResponse{Entries: entries})
}
