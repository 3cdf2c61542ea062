package procedure

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/http/respond"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
)

type Handler struct {
	svc   *procedure.Service
	audit *audit.Service
}

func NewHandler(svc *procedure.Service, auditSvc *audit.Service) *Handler {
	return &Handler{svc: svc, audit: auditSvc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Post("/express", h.createExpress)
	r.Get("/{id}", h.get)
	r.Get("/{id}/timeline", h.timeline)
	r.Get("/{id}/signature-requests", h.signatureRequests)
	r.Get("/{id}/payment", h.payment)
	r.Get("/{id}/events", h.events)
	r.Get("/{id}/grants", h.grants)
	r.Post("/{id}/configure", h.step(h.svc.Configure))
	r.Post("/{id}/invites", h.sendInvites)
	r.Post("/{id}/open-notary", h.step(h.svc.OpenNotary))
	r.Post("/{id}/complete", h.step(h.svc.Complete))
	r.Post("/{id}/cancel", h.step(h.svc.Cancel))
	r.Post("/{id}/expire", h.step(h.svc.Expire))
	r.Post("/{id}/grants", h.grant)
	r.Post("/{id}/signature-requests/{requestID}/link", h.regenerateLink)
}

type createProcedureRequest struct {
	IdentityPolicy    procedure.IdentityPolicy    `json:"identityPolicy"`
	PaymentPolicy     procedure.PaymentPolicy     `json:"paymentPolicy"`
	NotaryRequired    bool                        `json:"notaryRequired"`
	DocumentVersionID uuid.UUID                   `json:"documentVersionId"`
	Deal              procedure.DealSnapshot      `json:"deal"`
	Landlord          *procedure.Party            `json:"landlord,omitempty"`
	Tenant            *procedure.Party            `json:"tenant,omitempty"`
	Property          *procedure.PropertySnapshot `json:"property,omitempty"`
	Amount            decimal.Decimal             `json:"amount"`
	Currency          string                      `json:"currency"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	var req createProcedureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	p, err := h.svc.Create(r.Context(), actor, procedure.CreateParams{
		IdentityPolicy:    req.IdentityPolicy,
		PaymentPolicy:     req.PaymentPolicy,
		NotaryRequired:    req.NotaryRequired,
		DocumentVersionID: req.DocumentVersionID,
		Deal:              req.Deal,
		Landlord:          req.Landlord,
		Tenant:            req.Tenant,
		Property:          req.Property,
		Amount:            req.Amount,
		Currency:          req.Currency,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(p))
}

type createExpressRequest struct {
	Kind              procedure.ExpressKind       `json:"kind"`
	PayerMode         procedure.PayerMode         `json:"payerMode"`
	Landlord          procedure.Party             `json:"landlord"`
	Tenant            procedure.Party             `json:"tenant"`
	Payer             *procedure.Party            `json:"payer,omitempty"`
	DocumentVersionID uuid.UUID                   `json:"documentVersionId"`
	Deal              procedure.DealSnapshot      `json:"deal"`
	Property          *procedure.PropertySnapshot `json:"property,omitempty"`
	Amount            decimal.Decimal             `json:"amount"`
	Currency          string                      `json:"currency"`
}

func (h *Handler) createExpress(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	var req createExpressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	res, err := h.svc.CreateExpress(r.Context(), actor, procedure.ExpressParams{
		Kind:              req.Kind,
		PayerMode:         req.PayerMode,
		Landlord:          req.Landlord,
		Tenant:            req.Tenant,
		Payer:             req.Payer,
		DocumentVersionID: req.DocumentVersionID,
		Deal:              req.Deal,
		Property:          req.Property,
		Amount:            req.Amount,
		Currency:          req.Currency,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toInviteResponse(res))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	filter := procedure.ListFilter{Search: r.URL.Query().Get("q")}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(procedure.Status(s))
	}

	ps, err := h.svc.List(r.Context(), actor, filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(ps))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := target(w, r)
	if !ok {
		return
	}

	p, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := target(w, r)
	if !ok {
		return
	}

	p, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, eventsResponse{
		Status:           p.Status,
		AllowedEvents:    procedure.AllowedEvents(p.Status),
		CompleteEligible: procedure.IsCompleteEligible(p),
		Terminal:         p.Status.IsTerminal(),
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := target(w, r)
	if !ok {
		return
	}

	// Loading the procedure checks read access and existence.
	if _, err := h.svc.Get(r.Context(), actor, id); err != nil {
		respond.Error(w, err)
		return
	}

	events, err := h.audit.Timeline(r.Context(), actor.TenantID, id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toTimeline(events))
}

func (h *Handler) signatureRequests(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := target(w, r)
	if !ok {
		return
	}

	reqs, err := h.svc.SignatureRequests(r.Context(), actor, id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toRequestResponseList(reqs))
}

func (h *Handler) payment(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := target(w, r)
	if !ok {
		return
	}

	p, err := h.svc.Payment(r.Context(), actor, id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	if p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respond.JSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *Handler) grants(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := target(w, r)
	if !ok {
		return
	}

	gs, err := h.svc.Grants(r.Context(), actor, id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]grantResponse, len(gs))
	for i, g := range gs {
		resp[i] = toGrantResponse(g)
	}

	respond.JSON(w, http.StatusOK, resp)
}

// step serves the lifecycle endpoints that take no body.
func (h *Handler) step(fn func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*procedure.Procedure, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := target(w, r)
		if !ok {
			return
		}

		p, err := fn(r.Context(), actor, id)
		if err != nil {
			respond.Error(w, err)
			return
		}

		respond.JSON(w, http.StatusOK, toResponse(p))
	}
}

type participantRequest struct {
	Participant    procedure.Party `json:"participant"`
	Role           procedure.Role  `json:"role"`
	PaymentPercent *int            `json:"paymentPercent,omitempty"`
}

type sendInvitesRequest struct {
	Participants []participantRequest `json:"participants"`
}

func (h *Handler) sendInvites(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := target(w, r)
	if !ok {
		return
	}

	// An empty body invites the packet's tenant.
	var req sendInvitesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respond.BadRequest(w, err.Error())
		return
	}

	participants := make([]procedure.ParticipantInput, len(req.Participants))
	for i, p := range req.Participants {
		participants[i] = procedure.ParticipantInput{
			Participant:    p.Participant,
			Role:           p.Role,
			PaymentPercent: p.PaymentPercent,
		}
	}

	res, err := h.svc.SendInvites(r.Context(), actor, id, participants)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toInviteResponse(res))
}

type grantRequest struct {
	GranteeUID string            `json:"granteeUid"`
	Scopes     []procedure.Scope `json:"scopes,omitempty"`
	// TTL is a Go duration such as "72h". Empty takes the default.
	TTL string `json:"ttl,omitempty"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := target(w, r)
	if !ok {
		return
	}

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	var ttl time.Duration

	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			respond.BadRequest(w, "invalid ttl")
			return
		}

		ttl = d
	}

	g, err := h.svc.GrantNotaryAccess(r.Context(), actor, id, procedure.GrantParams{
		GranteeUID: req.GranteeUID,
		Scopes:     req.Scopes,
		TTL:        ttl,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toGrantResponse(g))
}

func (h *Handler) regenerateLink(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := target(w, r)
	if !ok {
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		respond.BadRequest(w, "invalid signature request id")
		return
	}

	t, err := h.svc.RegenerateLink(r.Context(), actor, id, requestID)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toLinkResponse(t))
}

// target resolves the caller and the {id} path parameter, writing the error
// response itself when either is missing.
func target(w http.ResponseWriter, r *http.Request) (auth.Actor, uuid.UUID, bool) {
	actor, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, err)
		return auth.Actor{}, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return auth.Actor{}, uuid.Nil, false
	}

	return actor, id, true
}
