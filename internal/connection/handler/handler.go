// Package handler is the thin HTTP layer over the connection coordinator. It
// parses and validates transport input and delegates; business rules live in
// the service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"linknet/internal/connection/models"
	"linknet/internal/connection/service"
	"linknet/internal/transport/http/shared"
	"linknet/pkg/domain"
	dErrors "linknet/pkg/domain-errors"
)

// Coordinator is the service surface this handler needs.
type Coordinator interface {
	Propose(ctx context.Context, initiatorID, targetID domain.MemberID) (*models.ConnectionRecord, error)
	Accept(ctx context.Context, id domain.ConnectionID) (*models.ConnectionRecord, error)
	Reject(ctx context.Context, id domain.ConnectionID) (*models.ConnectionRecord, error)
	Remove(ctx context.Context, id domain.ConnectionID) (*models.ConnectionRecord, error)
	MemberProfile(ctx context.Context, id domain.MemberID) (service.MemberProfile, error)
}

type Handler struct {
	coordinator Coordinator
	logger      *slog.Logger
}

func New(coordinator Coordinator, logger *slog.Logger) *Handler {
	return &Handler{coordinator: coordinator, logger: logger}
}

// Register registers the connection routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/connections", h.handlePropose)
	r.Post("/v1/connections/{id}/accept", h.transition(models.EventAccept))
	r.Post("/v1/connections/{id}/reject", h.transition(models.EventReject))
	r.Post("/v1/connections/{id}/remove", h.transition(models.EventRemove))
	r.Get("/v1/members/{id}/profile", h.handleProfile)
}

type proposeRequest struct {
	InitiatorID string `json:"initiatorId"`
	TargetID    string `json:"targetId"`
}

type connectionResponse struct {
	ID               string        `json:"id"`
	InitiatorID      string        `json:"initiatorId"`
	TargetID         string        `json:"targetId"`
	Status           models.Status `json:"status"`
	SharedIndustries []string      `json:"sharedIndustries"`
	CreatedAt        string        `json:"createdAt"`
	UpdatedAt        string        `json:"updatedAt"`
}

func toResponse(record *models.ConnectionRecord) connectionResponse {
	return connectionResponse{
		ID:               record.ID.String(),
		InitiatorID:      record.InitiatorID.String(),
		TargetID:         record.TargetID.String(),
		Status:           record.Status,
		SharedIndustries: record.SharedIndustries,
		CreatedAt:        record.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		UpdatedAt:        record.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func (h *Handler) handlePropose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	initiatorID, err := domain.ParseMemberID(req.InitiatorID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid initiatorId"))
		return
	}
	targetID, err := domain.ParseMemberID(req.TargetID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid targetId"))
		return
	}

	record, err := h.coordinator.Propose(ctx, initiatorID, targetID)
	if err != nil {
		h.logTransitionError(ctx, "propose", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toResponse(record))
}

func (h *Handler) transition(lifecycleEvent models.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := domain.ParseConnectionID(chi.URLParam(r, "id"))
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid connection id"))
			return
		}

		var record *models.ConnectionRecord
		switch lifecycleEvent {
		case models.EventAccept:
			record, err = h.coordinator.Accept(ctx, id)
		case models.EventReject:
			record, err = h.coordinator.Reject(ctx, id)
		case models.EventRemove:
			record, err = h.coordinator.Remove(ctx, id)
		}
		if err != nil {
			h.logTransitionError(ctx, string(lifecycleEvent), err)
			shared.WriteError(w, err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, toResponse(record))
	}
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseMemberID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid member id"))
		return
	}

	profile, err := h.coordinator.MemberProfile(ctx, id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) logTransitionError(ctx context.Context, event string, err error) {
	if dErrors.HasCode(err, dErrors.CodeStorage) || dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, "transition failed",
			"event", event,
			"error", err.Error(),
		)
		return
	}
	h.logger.DebugContext(ctx, "transition rejected",
		"event", event,
		"error", err.Error(),
	)
}
