package procedure

import (
	"time"

	"github.com/google/uuid"
)

// Role is a participant's obligation inside a procedure.
type Role string

const (
	RoleSigner      Role = "signer"
	RolePayer       Role = "payer"
	RoleSignerPayer Role = "signer_payer"
)

func (r Role) Valid() bool {
	return r == RoleSigner || r == RolePayer || r == RoleSignerPayer
}

// Pays reports whether the role carries a payment obligation.
func (r Role) Pays() bool {
	return r == RolePayer || r == RoleSignerPayer
}

type RequestStatus string

const (
	RequestPending RequestStatus = "pending"
	RequestSigned  RequestStatus = "signed"
)

type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentNotRequired PaymentStatus = "not_required"
)

// IdentityKind names one identity proof.
type IdentityKind string

const (
	IdentityClaveUnica IdentityKind = "claveunica"
	IdentityBiometrics IdentityKind = "biometrics"
)

// Evidence is the outcome reported by an identity provider.
type Evidence struct {
	Provider   string    `json:"provider"`
	Reference  string    `json:"reference,omitempty"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

type IdentityEvidence struct {
	ClaveUnica *Evidence `json:"claveUnica,omitempty"`
	Biometrics *Evidence `json:"biometrics,omitempty"`
}

type ParticipantPayment struct {
	Status     PaymentStatus `json:"status"`
	Provider   string        `json:"provider,omitempty"`
	ExternalID string        `json:"externalId,omitempty"`
	PaidAt     *time.Time    `json:"paidAt,omitempty"`
}

type SignatureEvidence struct {
	SignedAt  time.Time `json:"signedAt"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// SignatureRequest tracks one participant's identity, payment and signature.
type SignatureRequest struct {
	ID             uuid.UUID
	TenantID       string
	ProcedureID    uuid.UUID
	Role           Role
	Status         RequestStatus
	Identity       IdentityEvidence
	Payment        ParticipantPayment
	PaymentPercent int
	Participant    Party
	Signature      *SignatureEvidence
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *SignatureRequest) Clone() *SignatureRequest {
	out := *r

	if r.Identity.ClaveUnica != nil {
		out.Identity.ClaveUnica = new(*r.Identity.ClaveUnica)
	}

	if r.Identity.Biometrics != nil {
		out.Identity.Biometrics = new(*r.Identity.Biometrics)
	}

	if r.Payment.PaidAt != nil {
		out.Payment.PaidAt = new(*r.Payment.PaidAt)
	}

	if r.Signature != nil {
		out.Signature = new(*r.Signature)
	}

	return &out
}

// IsIdentityVerified reports whether the evidence satisfies the mode.
func IsIdentityVerified(mode IdentityMode, id IdentityEvidence) bool {
	clave := id.ClaveUnica != nil
	bio := id.Biometrics != nil

	switch mode {
	case IdentityClaveUnicaOnly:
		return clave
	case IdentityBiometricsOnly:
		return bio
	case IdentityEither:
		return clave || bio
	case IdentityBoth:
		return clave && bio
	default:
		return true
	}
}

// PaymentSatisfied reports whether the participant's own obligation is met.
func (r *SignatureRequest) PaymentSatisfied() bool {
	return !r.Role.Pays() || r.Payment.Status == PaymentPaid
}

// ParticipantInput describes one invitee. A nil PaymentPercent takes the
// role default.
type ParticipantInput struct {
	Participant    Party
	Role           Role
	PaymentPercent *int
}

// assignPercents fills role-derived defaults: signers owe nothing and the
// payers without an explicit share split the remainder of 100 evenly, with
// any leftover going to the first of them.
func assignPercents(in []ParticipantInput) []int {
	out := make([]int, len(in))

	var (
		explicit int
		open     []int
	)

	for i, p := range in {
		switch {
		case !p.Role.Pays():
			out[i] = 0
		case p.PaymentPercent != nil:
			out[i] = *p.PaymentPercent
			explicit += *p.PaymentPercent
		default:
			open = append(open, i)
		}
	}

	if len(open) == 0 {
		return out
	}

	rest := max(100-explicit, 0)
	share := rest / len(open)

	for _, i := range open {
		out[i] = share
	}

	out[open[0]] += rest - share*len(open)

	return out
}
