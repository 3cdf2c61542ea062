package memstore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/billing"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
)

var errTxDone = errors.New("transaction already finished")

var (
	_ procedure.Repository = (*Store)(nil)
	_ procedure.Tx         = (*tx)(nil)
)

type tx struct {
	store    *Store
	tenantID string
	st       *state
	done     bool
}

func (t *tx) Commit() error {
	if t.done {
		return errTxDone
	}

	t.store.st = t.st
	t.done = true
	t.store.mu.Unlock()

	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}

	t.done = true
	t.store.mu.Unlock()

	return nil
}

func (t *tx) GetProcedure(_ context.Context, id uuid.UUID) (*procedure.Procedure, error) {
	p, ok := t.st.procedures[id]
	if !ok || p.TenantID != t.tenantID {
		return nil, procedure.ErrNotFound
	}

	return p.Clone(), nil
}

func (t *tx) CreateProcedure(_ context.Context, p *procedure.Procedure) error {
	if _, ok := t.st.procedures[p.ID]; ok {
		return procedure.ErrConflict
	}

	t.st.procedures[p.ID] = p.Clone()

	return nil
}

func (t *tx) UpdateProcedure(_ context.Context, p *procedure.Procedure) error {
	cur, ok := t.st.procedures[p.ID]
	if !ok || cur.TenantID != t.tenantID {
		return procedure.ErrNotFound
	}

	if cur.Version != p.Version {
		return procedure.ErrConflict
	}

	p.Version++
	t.st.procedures[p.ID] = p.Clone()

	return nil
}

func (t *tx) ListSignatureRequests(_ context.Context, procedureID uuid.UUID) ([]*procedure.SignatureRequest, error) {
	return listRequests(t.st, t.tenantID, procedureID), nil
}

func (t *tx) CreateSignatureRequests(_ context.Context, reqs []*procedure.SignatureRequest) error {
	for _, r := range reqs {
		t.st.requests[r.ProcedureID] = append(t.st.requests[r.ProcedureID], r.Clone())
	}

	return nil
}

func (t *tx) UpdateSignatureRequest(_ context.Context, r *procedure.SignatureRequest) error {
	reqs := t.st.requests[r.ProcedureID]

	for i, cur := range reqs {
		if cur.ID == r.ID && cur.TenantID == t.tenantID {
			reqs[i] = r.Clone()
			return nil
		}
	}

	return procedure.ErrNotFound
}

func (t *tx) GetSigningToken(_ context.Context, id uuid.UUID) (*procedure.SigningToken, error) {
	tok, ok := t.st.tokens[id]
	if !ok || tok.TenantID != t.tenantID {
		return nil, procedure.ErrNotFound
	}

	return tok.Clone(), nil
}

func (t *tx) ListSigningTokens(_ context.Context, procedureID uuid.UUID) ([]*procedure.SigningToken, error) {
	return listTokens(t.st, t.tenantID, procedureID), nil
}

func (t *tx) CreateSigningToken(_ context.Context, tok *procedure.SigningToken) error {
	if tok.Status == procedure.TokenActive {
		for _, cur := range t.st.tokens {
			if cur.SignatureRequestID == tok.SignatureRequestID && cur.Status == procedure.TokenActive {
				return procedure.ErrConflict
			}
		}
	}

	t.st.tokens[tok.ID] = tok.Clone()

	return nil
}

func (t *tx) UpdateSigningToken(_ context.Context, tok *procedure.SigningToken) error {
	cur, ok := t.st.tokens[tok.ID]
	if !ok || cur.TenantID != t.tenantID {
		return procedure.ErrNotFound
	}

	t.st.tokens[tok.ID] = tok.Clone()

	return nil
}

func (t *tx) GetPayment(_ context.Context, procedureID uuid.UUID) (*procedure.Payment, error) {
	p, ok := t.st.payments[procedureID]
	if !ok || p.TenantID != t.tenantID {
		return nil, procedure.ErrNotFound
	}

	return new(*p), nil
}

func (t *tx) SavePayment(_ context.Context, p *procedure.Payment) error {
	t.st.payments[p.ProcedureID] = new(*p)

	return nil
}

func (t *tx) GetGrant(_ context.Context, id uuid.UUID) (*procedure.AccessGrant, error) {
	g, ok := t.st.grants[id]
	if !ok || g.TenantID != t.tenantID {
		return nil, procedure.ErrNotFound
	}

	return g.Clone(), nil
}

func (t *tx) CreateGrant(_ context.Context, g *procedure.AccessGrant) error {
	t.st.grants[g.ID] = g.Clone()

	return nil
}

func (t *tx) UpdateGrant(_ context.Context, g *procedure.AccessGrant) error {
	if _, ok := t.st.grants[g.ID]; !ok {
		return procedure.ErrNotFound
	}

	t.st.grants[g.ID] = g.Clone()

	return nil
}

func (t *tx) GetNotaryRequest(_ context.Context, procedureID uuid.UUID) (*procedure.NotaryRequest, error) {
	n, ok := t.st.notary[procedureID]
	if !ok || n.TenantID != t.tenantID {
		return nil, procedure.ErrNotFound
	}

	return n.Clone(), nil
}

func (t *tx) SaveNotaryRequest(_ context.Context, n *procedure.NotaryRequest) error {
	t.st.notary[n.ProcedureID] = n.Clone()

	return nil
}

func (t *tx) AppendAudit(_ context.Context, e audit.Entry) (*audit.Event, error) {
	return t.store.appendAudit(t.st, t.tenantID, e), nil
}

func (t *tx) EnsureBillingCompleted(_ context.Context, c billing.Completion) (*billing.Event, bool, error) {
	for _, ev := range t.st.billing {
		if ev.TenantID == t.tenantID && ev.ProcedureID == c.ProcedureID && ev.Type == billing.TypeProcedureCompleted {
			return ev, false, nil
		}
	}

	ev := billing.NewCompletionEvent(t.tenantID, c)
	t.st.billing = append(t.st.billing, ev)

	return ev, true, nil
}

func (t *tx) RecordProviderEvent(_ context.Context, r provider.Record) (*provider.Event, bool, error) {
	for _, ev := range t.st.providers {
		if ev.TenantID == t.tenantID && ev.Provider == r.Provider && ev.ExternalID == r.ExternalID {
			return ev, false, nil
		}
	}

	ev := provider.NewEvent(t.tenantID, r)
	t.st.providers = append(t.st.providers, ev)

	return ev, true, nil
}
