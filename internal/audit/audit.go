package audit

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

const (
	ActionProcedureCreated   = "PROCEDURE_CREATED"
	ActionStatusChanged      = "STATUS_CHANGED"
	ActionInvitesSent        = "INVITES_SENT"
	ActionTokenCreated       = "SIGN_TOKEN_CREATED"
	ActionTokenRevoked       = "SIGN_TOKEN_REVOKED"
	ActionTokenBlocked       = "SIGN_TOKEN_BLOCKED"
	ActionIdentityEvidence   = "IDENTITY_EVIDENCE_RECORDED"
	ActionIdentityVerified   = "IDENTITY_VERIFIED"
	ActionPaymentRecorded    = "PAYMENT_RECORDED"
	ActionSignatureSubmitted = "SIGNATURE_SUBMITTED"
	ActionGrantCreated       = "GRANT_CREATED"
	ActionGrantRevoked       = "GRANT_REVOKED"
	ActionNotaryOpened       = "NOTARY_OPENED"
	ActionNotaryApproved     = "NOTARY_UPLOAD_APPROVED"
	ActionNotaryRejected     = "NOTARY_REJECTED"
	ActionProcedureCompleted = "PROCEDURE_COMPLETED"
	ActionProcedureCancelled = "PROCEDURE_CANCELLED"
	ActionProcedureExpired   = "PROCEDURE_EXPIRED"
	ActionBillingRecorded    = "BILLING_RECORDED"
	ActionDocumentPublished  = "DOCUMENT_PUBLISHED"
	ActionDocumentVoided     = "VOID_DOC_VERSION"
)

// Entry is what callers append. ActorUID defaults to "system" and At to
// the time of the append.
type Entry struct {
	Action      string
	ProcedureID *uuid.UUID
	ActorUID    string
	Meta        map[string]any
	At          time.Time
}

// Event is an appended, immutable audit record.
type Event struct {
	ID          uuid.UUID
	Seq         int64 // Append order within the store
	TenantID    string
	Action      string
	ProcedureID *uuid.UUID
	ActorUID    string
	Meta        map[string]any
	CreatedAt   time.Time
}

// NewEvent builds the record a store persists for an entry.
func NewEvent(tenantID string, e Entry) *Event {
	actor := e.ActorUID
	if actor == "" {
		actor = "system"
	}

	meta := maps.Clone(e.Meta)
	if meta == nil {
		meta = map[string]any{}
	}

	return &Event{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Action:      e.Action,
		ProcedureID: e.ProcedureID,
		ActorUID:    actor,
		Meta:        meta,
		CreatedAt:   stamp(e.At),
	}
}

func stamp(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}

	return at
}
