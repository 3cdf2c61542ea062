package procedure

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a procedure.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusReadyToSend     Status = "ready_to_send"
	StatusInIdentity      Status = "in_identity"
	StatusInPayment       Status = "in_payment"
	StatusInSignature     Status = "in_signature"
	StatusPartiallySigned Status = "partially_signed"
	StatusFullySigned     Status = "fully_signed"
	StatusNotaryPending   Status = "notary_pending"
	StatusNotaryInReview  Status = "notary_in_review"
	StatusNotaryApproved  Status = "notary_approved"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusExpired         Status = "expired"
	StatusRejected        Status = "rejected"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusDraft, StatusReadyToSend, StatusInIdentity, StatusInPayment, StatusInSignature,
	StatusPartiallySigned, StatusFullySigned, StatusNotaryPending, StatusNotaryInReview,
	StatusNotaryApproved, StatusCompleted, StatusCancelled, StatusExpired, StatusRejected,
}

// IsTerminal reports whether the status ends the lifecycle. A rejected
// procedure can still be cancelled to close it out.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired, StatusRejected:
		return true
	default:
		return false
	}
}

// Event is an input to the state machine.
type Event string

const (
	EventConfigDone          Event = "CONFIG_DONE"
	EventSendInvites         Event = "SEND_INVITES"
	EventIdentityOK          Event = "IDENTITY_OK"
	EventPaymentsOK          Event = "PAYMENTS_OK"
	EventSignedOne           Event = "SIGNED_ONE"
	EventSignedAll           Event = "SIGNED_ALL"
	EventOpenNotary          Event = "OPEN_NOTARY"
	EventNotaryOpens         Event = "NOTARY_OPENS"
	EventNotaryUploadApprove Event = "NOTARY_UPLOAD_APPROVE"
	EventNotaryReject        Event = "NOTARY_REJECT"
	EventComplete            Event = "COMPLETE"
	EventCancel              Event = "CANCEL"
	EventExpire              Event = "EXPIRE"
)

var Events = []Event{
	EventConfigDone, EventSendInvites, EventIdentityOK, EventPaymentsOK, EventSignedOne, EventSignedAll,
	EventOpenNotary, EventNotaryOpens, EventNotaryUploadApprove, EventNotaryReject, EventComplete,
	EventCancel, EventExpire,
}

// IdentityMode selects which identity proofs a participant must present.
type IdentityMode string

const (
	IdentityNone           IdentityMode = "none"
	IdentityClaveUnicaOnly IdentityMode = "claveunica_only"
	IdentityBiometricsOnly IdentityMode = "biometrics_only"
	IdentityEither         IdentityMode = "either"
	IdentityBoth           IdentityMode = "both"
)

func (m IdentityMode) Valid() bool {
	switch m {
	case IdentityNone, IdentityClaveUnicaOnly, IdentityBiometricsOnly, IdentityEither, IdentityBoth:
		return true
	default:
		return false
	}
}

type IdentityPolicy struct {
	Mode IdentityMode `json:"mode"`
}

type PaymentPolicy struct {
	RequireBeforeSignature bool `json:"requireBeforeSignature"`
}

// Flags caches which policy gates have been satisfied.
type Flags struct {
	IdentityOK   bool `json:"identityOk"`
	PaymentsOK   bool `json:"paymentsOk"`
	SignaturesOK bool `json:"signaturesOk"`
	NotaryOK     bool `json:"notaryOk"`
}

// Party is a counterpart captured into the notary packet.
type Party struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	RUT   string `json:"rut,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type PropertySnapshot struct {
	ID      string          `json:"id,omitempty"`
	Address string          `json:"address"`
	Rol     string          `json:"rol,omitempty"`
	Price   decimal.Decimal `json:"price"`
}

type DealSnapshot struct {
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name"`
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency,omitempty"`
}

// DocumentVersionRef pins the exact frozen document a procedure signs.
type DocumentVersionRef struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"documentId"`
	Title      string    `json:"title"`
	Version    int       `json:"version"`
	Hash       string    `json:"hash"`
}

// NotaryPacket is the snapshot taken at creation. It is never re-derived
// from the source records afterwards.
type NotaryPacket struct {
	Landlord           *Party             `json:"landlord,omitempty"`
	Tenant             *Party             `json:"tenant,omitempty"`
	Property           *PropertySnapshot  `json:"property,omitempty"`
	Deal               DealSnapshot       `json:"deal"`
	DocumentVersionRef DocumentVersionRef `json:"documentVersionRef"`
	CapturedAt         time.Time          `json:"capturedAt"`
}

func (p NotaryPacket) clone() NotaryPacket {
	out := p
	if p.Landlord != nil {
		out.Landlord = new(*p.Landlord)
	}

	if p.Tenant != nil {
		out.Tenant = new(*p.Tenant)
	}

	if p.Property != nil {
		out.Property = new(*p.Property)
	}

	return out
}

// Procedure is the aggregate root of one signing workflow.
type Procedure struct {
	ID             uuid.UUID
	TenantID       string
	Status         Status
	IdentityPolicy IdentityPolicy
	PaymentPolicy  PaymentPolicy
	NotaryRequired bool
	Flags          Flags
	NotaryPacket   NotaryPacket
	AssignedNotary *string
	Amount         decimal.Decimal
	Currency       string
	LastEvent      Event
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	Version        int // Bumped on every persisted update
}

// Clone returns a deep copy.
func (p *Procedure) Clone() *Procedure {
	out := *p
	out.NotaryPacket = p.NotaryPacket.clone()

	if p.AssignedNotary != nil {
		out.AssignedNotary = new(*p.AssignedNotary)
	}

	if p.CompletedAt != nil {
		out.CompletedAt = new(*p.CompletedAt)
	}

	return &out
}

// Title is the human label for lists.
func (p *Procedure) Title() string {
	if p.NotaryPacket.Deal.Name != "" {
		return p.NotaryPacket.Deal.Name
	}

	return p.NotaryPacket.DocumentVersionRef.Title
}

func initialFlags(identity IdentityPolicy, payment PaymentPolicy, notaryRequired bool) Flags {
	return Flags{
		IdentityOK: identity.Mode == IdentityNone,
		PaymentsOK: !payment.RequireBeforeSignature,
		NotaryOK:   !notaryRequired,
	}
}
