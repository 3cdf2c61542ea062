package procedure

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
)

type procedureResponse struct {
	ID             uuid.UUID                `json:"id"`
	Title          string                   `json:"title"`
	Status         procedure.Status         `json:"status"`
	IdentityPolicy procedure.IdentityPolicy `json:"identityPolicy"`
	PaymentPolicy  procedure.PaymentPolicy  `json:"paymentPolicy"`
	NotaryRequired bool                     `json:"notaryRequired"`
	Flags          procedure.Flags          `json:"flags"`
	NotaryPacket   procedure.NotaryPacket   `json:"notaryPacket"`
	AssignedNotary *string                  `json:"assignedNotary,omitempty"`
	Amount         decimal.Decimal          `json:"amount"`
	Currency       string                   `json:"currency"`
	LastEvent      procedure.Event          `json:"lastEvent,omitempty"`
	CreatedBy      string                   `json:"createdBy"`
	CreatedAt      time.Time                `json:"createdAt"`
	UpdatedAt      time.Time                `json:"updatedAt"`
	CompletedAt    *time.Time               `json:"completedAt,omitempty"`
	Version        int                      `json:"version"`
}

func toResponse(p *procedure.Procedure) procedureResponse {
	return procedureResponse{
		ID:             p.ID,
		Title:          p.Title(),
		Status:         p.Status,
		IdentityPolicy: p.IdentityPolicy,
		PaymentPolicy:  p.PaymentPolicy,
		NotaryRequired: p.NotaryRequired,
		Flags:          p.Flags,
		NotaryPacket:   p.NotaryPacket,
		AssignedNotary: p.AssignedNotary,
		Amount:         p.Amount,
		Currency:       p.Currency,
		LastEvent:      p.LastEvent,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		CompletedAt:    p.CompletedAt,
		Version:        p.Version,
	}
}

func toResponseList(ps []*procedure.Procedure) []procedureResponse {
	resp := make([]procedureResponse, len(ps))
	for i, p := range ps {
		resp[i] = toResponse(p)
	}

	return resp
}

type eventsResponse struct {
	Status           procedure.Status  `json:"status"`
	AllowedEvents    []procedure.Event `json:"allowedEvents"`
	CompleteEligible bool              `json:"completeEligible"`
	Terminal         bool              `json:"terminal"`
}

type signatureRequestResponse struct {
	ID             uuid.UUID                    `json:"id"`
	Role           procedure.Role               `json:"role"`
	Status         procedure.RequestStatus      `json:"status"`
	Participant    procedure.Party              `json:"participant"`
	Identity       procedure.IdentityEvidence   `json:"identity"`
	Payment        procedure.ParticipantPayment `json:"payment"`
	PaymentPercent int                          `json:"paymentPercent"`
	Signature      *procedure.SignatureEvidence `json:"signature,omitempty"`
	CreatedAt      time.Time                    `json:"createdAt"`
	UpdatedAt      time.Time                    `json:"updatedAt"`
}

func toRequestResponse(r *procedure.SignatureRequest) signatureRequestResponse {
	return signatureRequestResponse{
		ID:             r.ID,
		Role:           r.Role,
		Status:         r.Status,
		Participant:    r.Participant,
		Identity:       r.Identity,
		Payment:        r.Payment,
		PaymentPercent: r.PaymentPercent,
		Signature:      r.Signature,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func toRequestResponseList(rs []*procedure.SignatureRequest) []signatureRequestResponse {
	resp := make([]signatureRequestResponse, len(rs))
	for i, r := range rs {
		resp[i] = toRequestResponse(r)
	}

	return resp
}

// linkResponse carries a signing link token. It is only returned to the
// actor who issued it.
type linkResponse struct {
	SignatureRequestID uuid.UUID             `json:"signatureRequestId"`
	Token              uuid.UUID             `json:"token"`
	Role               procedure.Role        `json:"role"`
	Status             procedure.TokenStatus `json:"status"`
	ExpiresAt          time.Time             `json:"expiresAt"`
}

func toLinkResponse(t *procedure.SigningToken) linkResponse {
	return linkResponse{
		SignatureRequestID: t.SignatureRequestID,
		Token:              t.ID,
		Role:               t.Role,
		Status:             t.Status,
		ExpiresAt:          t.ExpiresAt,
	}
}

type inviteResponse struct {
	Procedure procedureResponse          `json:"procedure"`
	Requests  []signatureRequestResponse `json:"signatureRequests"`
	Links     []linkResponse             `json:"links"`
}

func toInviteResponse(res *procedure.InviteResult) inviteResponse {
	links := make([]linkResponse, len(res.Tokens))
	for i, t := range res.Tokens {
		links[i] = toLinkResponse(t)
	}

	return inviteResponse{
		Procedure: toResponse(res.Procedure),
		Requests:  toRequestResponseList(res.Requests),
		Links:     links,
	}
}

type paymentResponse struct {
	Kind            string                    `json:"kind"`
	RequiredPercent int                       `json:"requiredPercent"`
	PaidPercent     int                       `json:"paidPercent"`
	Status          procedure.AggregateStatus `json:"status"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
}

func toPaymentResponse(p *procedure.Payment) paymentResponse {
	return paymentResponse{
		Kind:            p.Kind,
		RequiredPercent: p.RequiredPercent,
		PaidPercent:     p.PaidPercent,
		Status:          p.Status,
		UpdatedAt:       p.UpdatedAt,
	}
}

type grantResponse struct {
	ID          uuid.UUID             `json:"id"`
	ProcedureID uuid.UUID             `json:"procedureId"`
	GranteeUID  string                `json:"granteeUid"`
	Scopes      []procedure.Scope     `json:"scopes"`
	Status      procedure.GrantStatus `json:"status"`
	ExpiresAt   time.Time             `json:"expiresAt"`
	CreatedBy   string                `json:"createdBy"`
	CreatedAt   time.Time             `json:"createdAt"`
}

func toGrantResponse(g *procedure.AccessGrant) grantResponse {
	return grantResponse{
		ID:          g.ID,
		ProcedureID: g.ProcedureID,
		GranteeUID:  g.GranteeUID,
		Scopes:      g.Scopes,
		Status:      g.Status,
		ExpiresAt:   g.ExpiresAt,
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
	}
}

type timelineEntry struct {
	Seq       int64          `json:"seq"`
	Action    string         `json:"action"`
	ActorUID  string         `json:"actorUid"`
	Meta      map[string]any `json:"meta"`
	CreatedAt time.Time      `json:"createdAt"`
}

func toTimeline(events []*audit.Event) []timelineEntry {
	resp := make([]timelineEntry, len(events))
	for i, e := range events {
		resp[i] = timelineEntry{
			Seq:       e.Seq,
			Action:    e.Action,
			ActorUID:  e.ActorUID,
			Meta:      e.Meta,
			CreatedAt: e.CreatedAt,
		}
	}

	return resp
}
