// Package handler exposes member registration and profile-edit endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"linknet/internal/member/models"
	"linknet/internal/transport/http/shared"
	"linknet/pkg/domain"
	dErrors "linknet/pkg/domain-errors"
)

// Service is the member service surface this handler needs.
type Service interface {
	Register(ctx context.Context, displayName string, industries []string) (*models.Member, error)
	Get(ctx context.Context, id domain.MemberID) (*models.Member, error)
	UpdateIndustries(ctx context.Context, id domain.MemberID, industries []string) (*models.Member, error)
}

type Handler struct {
	members Service
	logger  *slog.Logger
}

func New(members Service, logger *slog.Logger) *Handler {
	return &Handler{members: members, logger: logger}
}

// Register registers the member routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/members", h.handleRegister)
	r.Get("/v1/members/{id}", h.handleGet)
	r.Put("/v1/members/{id}/industries", h.handleUpdateIndustries)
}

type registerRequest struct {
	DisplayName string   `json:"displayName"`
	Industries  []string `json:"industries"`
}

type industriesRequest struct {
	Industries []string `json:"industries"`
}

type memberResponse struct {
	ID                      string   `json:"id"`
	DisplayName             string   `json:"displayName"`
	Industries              []string `json:"industries"`
	AcceptedConnectionCount int      `json:"acceptedConnectionCount"`
	NetworkValue            float64  `json:"networkValue"`
}

func toResponse(member *models.Member) memberResponse {
	return memberResponse{
		ID:                      member.ID.String(),
		DisplayName:             member.DisplayName,
		Industries:              member.Industries,
		AcceptedConnectionCount: member.AcceptedConnectionCount,
		NetworkValue:            member.NetworkValue,
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	member, err := h.members.Register(r.Context(), req.DisplayName, req.Industries)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toResponse(member))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseMemberID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid member id"))
		return
	}

	member, err := h.members.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(member))
}

func (h *Handler) handleUpdateIndustries(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseMemberID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid member id"))
		return
	}

	var req industriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	member, err := h.members.UpdateIndustries(r.Context(), id, req.Industries)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(member))
}
