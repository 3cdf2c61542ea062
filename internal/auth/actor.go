package auth

import "errors"

// Role is the role an actor holds inside its tenant.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleBroker Role = "broker"
	RoleNotary Role = "notary"
)

// Permission names an action checked by Can.
type Permission string

const (
	PermProcedureCreate      Permission = "procedure:create"
	PermProcedureRead        Permission = "procedure:read"
	PermProcedureUpdate      Permission = "procedure:update"
	PermProcedureSendInvites Permission = "procedure:send_invites"
	PermProcedureGrantNotary Permission = "procedure:grant_notary"
	PermDocumentsWrite       Permission = "documents:write"
	PermDocumentsVoid        Permission = "procedure:void_doc"
	PermBillingRead          Permission = "billing:read"
	PermAuditRead            Permission = "audit:read"
	PermNotaryRead           Permission = "notary:read"
	PermNotaryUpload         Permission = "notary:upload_legalized"
	PermNotaryReject         Permission = "notary:reject"
)

// SystemUID is recorded as the actor of writes that no user initiated.
const SystemUID = "system"

var ErrNoActor = errors.New("no actor in context")

// Actor is the authenticated caller of an operation. Every tenant-scoped
// call receives one explicitly; nothing reads an ambient session.
type Actor struct {
	TenantID      string
	UID           string
	Role          Role
	PlatformAdmin bool
}

// System returns the actor used for provider callbacks and chained work.
func System(tenantID string) Actor {
	return Actor{TenantID: tenantID, UID: SystemUID}
}

// Can reports whether the actor may perform the action.
func (a Actor) Can(p Permission) bool {
	if a.PlatformAdmin {
		return true
	}

	switch p {
	case PermProcedureCreate, PermProcedureRead, PermProcedureUpdate, PermProcedureSendInvites,
		PermProcedureGrantNotary, PermDocumentsWrite, PermDocumentsVoid, PermBillingRead, PermAuditRead:
		return a.Role == RoleAdmin || a.Role == RoleBroker
	case PermNotaryRead, PermNotaryUpload, PermNotaryReject:
		return a.Role == RoleNotary
	default:
		return false
	}
}

// ActorUID returns the uid to record in audit entries.
func (a Actor) ActorUID() string {
	if a.UID == "" {
		return SystemUID
	}

	return a.UID
}
