// Package session issues access tokens for local development. It is only
// mounted when AUTH_DEV_LOGIN is set; production tokens come from the
// identity provider signed with the same secret.
package session

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/http/respond"
)

type Handler struct {
	issuer *auth.Issuer
}

func NewHandler(issuer *auth.Issuer) *Handler {
	return &Handler{issuer: issuer}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.login)
}

type loginRequest struct {
	TenantID      string    `json:"tenantId"`
	UID           string    `json:"uid"`
	Role          auth.Role `json:"role"`
	PlatformAdmin bool      `json:"platformAdmin,omitempty"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	if req.TenantID == "" || req.UID == "" {
		respond.BadRequest(w, "tenantId and uid are required")
		return
	}

	switch req.Role {
	case auth.RoleAdmin, auth.RoleBroker, auth.RoleNotary:
	default:
		respond.BadRequest(w, "unknown role")
		return
	}

	token, err := h.issuer.Issue(auth.Actor{
		TenantID:      req.TenantID,
		UID:           req.UID,
		Role:          req.Role,
		PlatformAdmin: req.PlatformAdmin,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, loginResponse{AccessToken: token, TokenType: "Bearer"})
}
