package procedure

import (
	"context"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/billing"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
)

// Repository reads procedure state outside of a step and opens the
// transaction every mutating step runs in.
type Repository interface {
	GetProcedure(ctx context.Context, tenantID string, id uuid.UUID) (*Procedure, error)
	ListProcedures(ctx context.Context, tenantID string, filter ListFilter) ([]*Procedure, error)
	ListSignatureRequests(ctx context.Context, tenantID string, procedureID uuid.UUID) ([]*SignatureRequest, error)
	ListSigningTokens(ctx context.Context, tenantID string, procedureID uuid.UUID) ([]*SigningToken, error)
	GetPayment(ctx context.Context, tenantID string, procedureID uuid.UUID) (*Payment, error)
	GetNotaryRequest(ctx context.Context, tenantID string, procedureID uuid.UUID) (*NotaryRequest, error)
	ListGrants(ctx context.Context, tenantID string, procedureID uuid.UUID) ([]*AccessGrant, error)
	ListGrantsByGrantee(ctx context.Context, granteeUID string) ([]*AccessGrant, error)

	// GetSigningToken and GetGrant are not tenant scoped: the token value
	// and the grantee are the credentials.
	GetSigningToken(ctx context.Context, id uuid.UUID) (*SigningToken, error)
	GetGrant(ctx context.Context, id uuid.UUID) (*AccessGrant, error)

	// Begin opens a transaction holding the per-procedure lock for
	// procedureID. Nothing is visible to other callers until Commit.
	Begin(ctx context.Context, tenantID string, procedureID uuid.UUID) (Tx, error)
}

// Tx is one atomic step. All reads see the step's own writes.
type Tx interface {
	GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error)
	CreateProcedure(ctx context.Context, p *Procedure) error
	// UpdateProcedure fails with ErrConflict unless p.Version matches the
	// stored version, then bumps p.Version.
	UpdateProcedure(ctx context.Context, p *Procedure) error

	ListSignatureRequests(ctx context.Context, procedureID uuid.UUID) ([]*SignatureRequest, error)
	CreateSignatureRequests(ctx context.Context, reqs []*SignatureRequest) error
	UpdateSignatureRequest(ctx context.Context, r *SignatureRequest) error

	GetSigningToken(ctx context.Context, id uuid.UUID) (*SigningToken, error)
	ListSigningTokens(ctx context.Context, procedureID uuid.UUID) ([]*SigningToken, error)
	CreateSigningToken(ctx context.Context, t *SigningToken) error
	UpdateSigningToken(ctx context.Context, t *SigningToken) error

	GetPayment(ctx context.Context, procedureID uuid.UUID) (*Payment, error)
	SavePayment(ctx context.Context, p *Payment) error

	GetGrant(ctx context.Context, id uuid.UUID) (*AccessGrant, error)
	CreateGrant(ctx context.Context, g *AccessGrant) error
	UpdateGrant(ctx context.Context, g *AccessGrant) error

	GetNotaryRequest(ctx context.Context, procedureID uuid.UUID) (*NotaryRequest, error)
	SaveNotaryRequest(ctx context.Context, n *NotaryRequest) error

	AppendAudit(ctx context.Context, e audit.Entry) (*audit.Event, error)
	// EnsureBillingCompleted creates the procedure_completed event once.
	EnsureBillingCompleted(ctx context.Context, c billing.Completion) (*billing.Event, bool, error)
	// RecordProviderEvent stores the record once per (provider, external id).
	RecordProviderEvent(ctx context.Context, r provider.Record) (*provider.Event, bool, error)

	Commit() error
	Rollback() error
}

type ListFilter struct {
	Status *Status
	Search string
}
