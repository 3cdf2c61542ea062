// Package ledger serves the tenant's billing and audit trails.
package ledger

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/billing"
	"github.com/MrJamesThe3rd/unpaper/internal/http/respond"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
)

type Handler struct {
	billing   *billing.Service
	audit     *audit.Service
	providers *provider.Service
}

func NewHandler(billingSvc *billing.Service, auditSvc *audit.Service, providerSvc *provider.Service) *Handler {
	return &Handler{billing: billingSvc, audit: auditSvc, providers: providerSvc}
}

func (h *Handler) BillingRoutes(r chi.Router) {
	r.Get("/events", h.billingEvents)
	r.Get("/summary", h.billingSummary)
}

func (h *Handler) AuditRoutes(r chi.Router) {
	r.Get("/events", h.auditEvents)
}

func (h *Handler) ProviderRoutes(r chi.Router) {
	r.Get("/events", h.providerEvents)
}

type billingEventResponse struct {
	ID          uuid.UUID       `json:"id"`
	Type        billing.Type    `json:"type"`
	ProcedureID uuid.UUID       `json:"procedureId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Meta        map[string]any  `json:"meta"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (h *Handler) billingEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := allowed(w, r, auth.PermBillingRead)
	if !ok {
		return
	}

	filter := billing.ListFilter{Type: billing.Type(r.URL.Query().Get("type"))}

	id, ok := procedureFilter(w, r)
	if !ok {
		return
	}

	filter.ProcedureID = id

	events, err := h.billing.List(r.Context(), actor.TenantID, filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]billingEventResponse, len(events))
	for i, e := range events {
		resp[i] = billingEventResponse{
			ID:          e.ID,
			Type:        e.Type,
			ProcedureID: e.ProcedureID,
			Amount:      e.Amount,
			Currency:    e.Currency,
			Meta:        e.Meta,
			CreatedAt:   e.CreatedAt,
		}
	}

	respond.JSON(w, http.StatusOK, resp)
}

type summaryResponse struct {
	Count  int                        `json:"count"`
	Totals map[string]decimal.Decimal `json:"totals"`
}

func (h *Handler) billingSummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := allowed(w, r, auth.PermBillingRead)
	if !ok {
		return
	}

	sum, err := h.billing.Summarize(r.Context(), actor.TenantID)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, summaryResponse{Count: sum.Count, Totals: sum.Totals})
}

type auditEventResponse struct {
	ID          uuid.UUID      `json:"id"`
	Seq         int64          `json:"seq"`
	Action      string         `json:"action"`
	ProcedureID *uuid.UUID     `json:"procedureId,omitempty"`
	ActorUID    string         `json:"actorUid"`
	Meta        map[string]any `json:"meta"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func (h *Handler) auditEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := allowed(w, r, auth.PermAuditRead)
	if !ok {
		return
	}

	filter := audit.ListFilter{Action: r.URL.Query().Get("action")}

	id, ok := procedureFilter(w, r)
	if !ok {
		return
	}

	filter.ProcedureID = id

	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			respond.BadRequest(w, "invalid limit")
			return
		}

		filter.Limit = n
	}

	events, err := h.audit.List(r.Context(), actor.TenantID, filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]auditEventResponse, len(events))
	for i, e := range events {
		resp[i] = auditEventResponse{
			ID:          e.ID,
			Seq:         e.Seq,
			Action:      e.Action,
			ProcedureID: e.ProcedureID,
			ActorUID:    e.ActorUID,
			Meta:        e.Meta,
			CreatedAt:   e.CreatedAt,
		}
	}

	respond.JSON(w, http.StatusOK, resp)
}

type providerEventResponse struct {
	ID         uuid.UUID      `json:"id"`
	Provider   string         `json:"provider"`
	ExternalID string         `json:"externalId"`
	Payload    map[string]any `json:"payload"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func (h *Handler) providerEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := allowed(w, r, auth.PermAuditRead)
	if !ok {
		return
	}

	events, err := h.providers.List(r.Context(), actor.TenantID, provider.ListFilter{
		Provider: r.URL.Query().Get("provider"),
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]providerEventResponse, len(events))
	for i, e := range events {
		resp[i] = providerEventResponse{
			ID:         e.ID,
			Provider:   e.Provider,
			ExternalID: e.ExternalID,
			Payload:    e.Payload,
			CreatedAt:  e.CreatedAt,
		}
	}

	respond.JSON(w, http.StatusOK, resp)
}

func allowed(w http.ResponseWriter, r *http.Request, perm auth.Permission) (auth.Actor, bool) {
	actor, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, err)
		return auth.Actor{}, false
	}

	if !actor.Can(perm) {
		respond.Error(w, procedure.ErrForbidden)
		return auth.Actor{}, false
	}

	return actor, true
}

func procedureFilter(w http.ResponseWriter, r *http.Request) (*uuid.UUID, bool) {
	s := r.URL.Query().Get("procedureId")
	if s == "" {
		return nil, true
	}

	id, err := uuid.Parse(s)
	if err != nil {
		respond.BadRequest(w, "invalid procedureId")
		return nil, false
	}

	return &id, true
}
