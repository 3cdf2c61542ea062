package procedure

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Scope is a capability an access grant gives a notary.
type Scope string

const (
	ScopeRead            Scope = "notary:read"
	ScopeUploadLegalized Scope = "notary:upload_legalized"
	ScopeReject          Scope = "notary:reject"
)

var AllScopes = []Scope{ScopeRead, ScopeUploadLegalized, ScopeReject}

// scopeFor maps each notary event to the scope it requires.
var scopeFor = map[Event]Scope{
	EventNotaryOpens:         ScopeRead,
	EventNotaryUploadApprove: ScopeUploadLegalized,
	EventNotaryReject:        ScopeReject,
}

type GrantStatus string

const (
	GrantActive  GrantStatus = "active"
	GrantRevoked GrantStatus = "revoked"
)

// AccessGrant is a time-boxed, scope-limited permission for a notary to
// act on one procedure.
type AccessGrant struct {
	ID          uuid.UUID
	TenantID    string
	ProcedureID uuid.UUID
	GranteeUID  string
	Scopes      []Scope
	Status      GrantStatus
	ExpiresAt   time.Time
	CreatedBy   string
	CreatedAt   time.Time
}

func (g *AccessGrant) Clone() *AccessGrant {
	out := *g
	out.Scopes = slices.Clone(g.Scopes)

	return &out
}

func (g *AccessGrant) Active(now time.Time) bool {
	return g.Status == GrantActive && now.Before(g.ExpiresAt)
}

func (g *AccessGrant) HasScope(s Scope) bool {
	return slices.Contains(g.Scopes, s)
}

type NotaryRequestStatus string

const (
	NotaryRequestCreated  NotaryRequestStatus = "created"
	NotaryRequestInReview NotaryRequestStatus = "in_review"
	NotaryRequestApproved NotaryRequestStatus = "approved"
	NotaryRequestRejected NotaryRequestStatus = "rejected"
)

// NotaryRequest records the notary's handling of a procedure.
type NotaryRequest struct {
	ID                uuid.UUID
	TenantID          string
	ProcedureID       uuid.UUID
	NotaryUID         string
	Status            NotaryRequestStatus
	OpenedAt          *time.Time
	LegalizedFileName string
	UploadedAt        *time.Time
	RejectedAt        *time.Time
	Reason            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (n *NotaryRequest) Clone() *NotaryRequest {
	out := *n

	if n.OpenedAt != nil {
		out.OpenedAt = new(*n.OpenedAt)
	}

	if n.UploadedAt != nil {
		out.UploadedAt = new(*n.UploadedAt)
	}

	if n.RejectedAt != nil {
		out.RejectedAt = new(*n.RejectedAt)
	}

	return &out
}
