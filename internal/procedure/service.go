package procedure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/document"
)

//go:generate mockgen -source=service.go -destination=source_mock.go -package=procedure
type DocumentSource interface {
	GetAvailable(ctx context.Context, tenantID string, id uuid.UUID) (*document.Version, error)
}

// Settings tune token lifetimes and billing.
type Settings struct {
	TokenTTL        time.Duration
	MaxAttempts     int
	GrantTTL        time.Duration
	ProcedureFee    decimal.Decimal
	BillingCurrency string
}

func DefaultSettings() Settings {
	return Settings{
		TokenTTL:        7 * 24 * time.Hour,
		MaxAttempts:     DefaultMaxAttempts,
		GrantTTL:        7 * 24 * time.Hour,
		ProcedureFee:    decimal.NewFromInt(29990),
		BillingCurrency: "CLP",
	}
}

type Option func(*Service)

func WithSettings(s Settings) Option {
	return func(svc *Service) { svc.settings = s }
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// Service runs every lifecycle step of a procedure. Each mutating call is
// one transaction: validate, mutate, transition, persist, audit and any
// chained transitions commit together or not at all.
type Service struct {
	repo      Repository
	documents DocumentSource
	settings  Settings
	now       func() time.Time
	newID     func() uuid.UUID
}

func NewService(repo Repository, documents DocumentSource, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		documents: documents,
		settings:  DefaultSettings(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.New,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// keepError makes inTx commit the writes made so far and still fail.
type keepError struct {
	err error
}

func (e *keepError) Error() string { return e.err.Error() }
func (e *keepError) Unwrap() error { return e.err }

func (s *Service) inTx(ctx context.Context, tenantID string, procedureID uuid.UUID, fn func(tx Tx) error) error {
	tx, err := s.repo.Begin(ctx, tenantID, procedureID)
	if err != nil {
		return fmt.Errorf("beginning procedure tx: %w", err)
	}
	defer tx.Rollback()

	err = fn(tx)

	var keep *keepError
	if errors.As(err, &keep) {
		if cerr := tx.Commit(); cerr != nil {
			return fmt.Errorf("committing procedure tx: %w", cerr)
		}

		return keep.err
	}

	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing procedure tx: %w", err)
	}

	return nil
}

// entry stamps the audit record with the service clock.
func (s *Service) entry(p *Procedure, actorUID, action string, meta map[string]any) audit.Entry {
	id := p.ID

	return audit.Entry{Action: action, ProcedureID: &id, ActorUID: actorUID, Meta: meta, At: s.now()}
}

// apply fires the event, persists the new snapshot and records the change.
func (s *Service) apply(ctx context.Context, tx Tx, p *Procedure, event Event, actorUID string) (*Procedure, error) {
	next, err := TransitionAt(p, event, s.now())
	if err != nil {
		return nil, err
	}

	if err := tx.UpdateProcedure(ctx, next); err != nil {
		return nil, fmt.Errorf("updating procedure: %w", err)
	}

	_, err = tx.AppendAudit(ctx, s.entry(next, actorUID, audit.ActionStatusChanged, map[string]any{
		"event": string(event),
		"from":  string(p.Status),
		"to":    string(next.Status),
	}))
	if err != nil {
		return nil, fmt.Errorf("appending audit: %w", err)
	}

	return next, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Procedure, error) {
	if !actor.Can(auth.PermProcedureRead) {
		return nil, ErrForbidden
	}

	return s.repo.GetProcedure(ctx, actor.TenantID, id)
}

func (s *Service) List(ctx context.Context, actor auth.Actor, filter ListFilter) ([]*Procedure, error) {
	if !actor.Can(auth.PermProcedureRead) {
		return nil, ErrForbidden
	}

	return s.repo.ListProcedures(ctx, actor.TenantID, filter)
}

func (s *Service) SignatureRequests(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]*SignatureRequest, error) {
	if !actor.Can(auth.PermProcedureRead) {
		return nil, ErrForbidden
	}

	return s.repo.ListSignatureRequests(ctx, actor.TenantID, id)
}

func (s *Service) SigningTokens(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]*SigningToken, error) {
	if !actor.Can(auth.PermProcedureSendInvites) {
		return nil, ErrForbidden
	}

	return s.repo.ListSigningTokens(ctx, actor.TenantID, id)
}

func (s *Service) Grants(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]*AccessGrant, error) {
	if !actor.Can(auth.PermProcedureGrantNotary) {
		return nil, ErrForbidden
	}

	return s.repo.ListGrants(ctx, actor.TenantID, id)
}

// Payment returns the aggregate, or nil when the procedure has no payer.
func (s *Service) Payment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Payment, error) {
	if !actor.Can(auth.PermProcedureRead) {
		return nil, ErrForbidden
	}

	p, err := s.repo.GetPayment(ctx, actor.TenantID, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}

	return p, err
}

// NotaryRequest returns the notary's record, or nil before any notary acted.
func (s *Service) NotaryRequest(ctx context.Context, actor auth.Actor, id uuid.UUID) (*NotaryRequest, error) {
	if !actor.Can(auth.PermProcedureRead) {
		return nil, ErrForbidden
	}

	n, err := s.repo.GetNotaryRequest(ctx, actor.TenantID, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}

	return n, err
}
