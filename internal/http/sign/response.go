package sign

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
)

// procedureView is the slice of a procedure a participant may see.
type procedureView struct {
	ID             uuid.UUID                    `json:"id"`
	Title          string                       `json:"title"`
	Status         procedure.Status             `json:"status"`
	IdentityMode   procedure.IdentityMode       `json:"identityMode"`
	PayBeforeSign  bool                         `json:"paymentBeforeSignature"`
	NotaryRequired bool                         `json:"notaryRequired"`
	Document       procedure.DocumentVersionRef `json:"document"`
	Amount         decimal.Decimal              `json:"amount"`
	Currency       string                       `json:"currency"`
}

func toProcedureView(p *procedure.Procedure) procedureView {
	return procedureView{
		ID:             p.ID,
		Title:          p.Title(),
		Status:         p.Status,
		IdentityMode:   p.IdentityPolicy.Mode,
		PayBeforeSign:  p.PaymentPolicy.RequireBeforeSignature,
		NotaryRequired: p.NotaryRequired,
		Document:       p.NotaryPacket.DocumentVersionRef,
		Amount:         p.Amount,
		Currency:       p.Currency,
	}
}

type requestView struct {
	ID             uuid.UUID                    `json:"id"`
	Role           procedure.Role               `json:"role"`
	Status         procedure.RequestStatus      `json:"status"`
	Participant    procedure.Party              `json:"participant"`
	Identity       procedure.IdentityEvidence   `json:"identity"`
	Payment        procedure.ParticipantPayment `json:"payment"`
	PaymentPercent int                          `json:"paymentPercent"`
	Signature      *procedure.SignatureEvidence `json:"signature,omitempty"`
}

func toRequestView(r *procedure.SignatureRequest) requestView {
	return requestView{
		ID:             r.ID,
		Role:           r.Role,
		Status:         r.Status,
		Participant:    r.Participant,
		Identity:       r.Identity,
		Payment:        r.Payment,
		PaymentPercent: r.PaymentPercent,
		Signature:      r.Signature,
	}
}

type paymentView struct {
	RequiredPercent int                       `json:"requiredPercent"`
	PaidPercent     int                       `json:"paidPercent"`
	Status          procedure.AggregateStatus `json:"status"`
}

func toPaymentView(p *procedure.Payment) *paymentView {
	if p == nil {
		return nil
	}

	return &paymentView{
		RequiredPercent: p.RequiredPercent,
		PaidPercent:     p.PaidPercent,
		Status:          p.Status,
	}
}

type sessionResponse struct {
	Procedure        procedureView `json:"procedure"`
	Request          requestView   `json:"signatureRequest"`
	Payment          *paymentView  `json:"payment,omitempty"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	AttemptsLeft     int           `json:"attemptsLeft"`
	IdentityVerified bool          `json:"identityVerified"`
	CanSign          bool          `json:"canSign"`
	Blocker          string        `json:"blocker,omitempty"`
}

func toSessionResponse(s *procedure.SigningSession, maxAttempts int) sessionResponse {
	resp := sessionResponse{
		Procedure:        toProcedureView(s.Procedure),
		Request:          toRequestView(s.Request),
		Payment:          toPaymentView(s.Payment),
		ExpiresAt:        s.Token.ExpiresAt,
		AttemptsLeft:     max(maxAttempts-s.Token.Attempts, 0),
		IdentityVerified: s.IdentityVerified,
		CanSign:          s.SignBlocker == nil,
	}

	if s.SignBlocker != nil {
		resp.Blocker = s.SignBlocker.Error()
	}

	return resp
}

type stepResponse struct {
	Procedure procedureView `json:"procedure"`
	Request   requestView   `json:"signatureRequest"`
}

type identityResponse struct {
	stepResponse
	Verified bool `json:"verified"`
}

type paymentResponse struct {
	stepResponse
	Payment   *paymentView `json:"payment,omitempty"`
	Duplicate bool         `json:"duplicate"`
}

type signatureResponse struct {
	stepResponse
	Completed bool `json:"completed"`
}
