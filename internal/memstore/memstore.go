// Package memstore keeps every repository in process memory. It backs
// STORAGE_DRIVER=memory and the service tests.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/billing"
	"github.com/MrJamesThe3rd/unpaper/internal/document"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
)

type state struct {
	procedures map[uuid.UUID]*procedure.Procedure
	requests   map[uuid.UUID][]*procedure.SignatureRequest
	tokens     map[uuid.UUID]*procedure.SigningToken
	payments   map[uuid.UUID]*procedure.Payment
	grants     map[uuid.UUID]*procedure.AccessGrant
	notary     map[uuid.UUID]*procedure.NotaryRequest
	versions   map[uuid.UUID]*document.Version
	audit      []*audit.Event
	billing    []*billing.Event
	providers  []*provider.Event
	seq        int64
}

func newState() *state {
	return &state{
		procedures: make(map[uuid.UUID]*procedure.Procedure),
		requests:   make(map[uuid.UUID][]*procedure.SignatureRequest),
		tokens:     make(map[uuid.UUID]*procedure.SigningToken),
		payments:   make(map[uuid.UUID]*procedure.Payment),
		grants:     make(map[uuid.UUID]*procedure.AccessGrant),
		notary:     make(map[uuid.UUID]*procedure.NotaryRequest),
		versions:   make(map[uuid.UUID]*document.Version),
	}
}

// clone copies the mutable records. Appended ledger events are never
// changed in place, so their slices only need a new backing array.
func (s *state) clone() *state {
	out := newState()

	for id, p := range s.procedures {
		out.procedures[id] = p.Clone()
	}

	for id, reqs := range s.requests {
		cp := make([]*procedure.SignatureRequest, len(reqs))
		for i, r := range reqs {
			cp[i] = r.Clone()
		}

		out.requests[id] = cp
	}

	for id, t := range s.tokens {
		out.tokens[id] = t.Clone()
	}

	for id, p := range s.payments {
		out.payments[id] = new(*p)
	}

	for id, g := range s.grants {
		out.grants[id] = g.Clone()
	}

	for id, n := range s.notary {
		out.notary[id] = n.Clone()
	}

	maps.Copy(out.versions, s.versions)

	out.audit = slices.Clone(s.audit)
	out.billing = slices.Clone(s.billing)
	out.providers = slices.Clone(s.providers)
	out.seq = s.seq

	return out
}

// Store serializes every transaction behind one lock, which is stronger
// than the per-procedure lock the Postgres store takes.
type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) appendAudit(st *state, tenantID string, e audit.Entry) *audit.Event {
	ev := audit.NewEvent(tenantID, e)
	st.seq++
	ev.Seq = st.seq
	st.audit = append(st.audit, ev)

	return ev
}

func (s *Store) GetProcedure(_ context.Context, tenantID string, id uuid.UUID) (*procedure.Procedure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.st.procedures[id]
	if !ok || p.TenantID != tenantID {
		return nil, procedure.ErrNotFound
	}

	return p.Clone(), nil
}

func (s *Store) ListProcedures(_ context.Context, tenantID string, filter procedure.ListFilter) ([]*procedure.Procedure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))

	var out []*procedure.Procedure

	for _, p := range s.st.procedures {
		if p.TenantID != tenantID {
			continue
		}

		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}

		if search != "" && !strings.Contains(strings.ToLower(p.Title()), search) &&
			!strings.HasPrefix(p.ID.String(), search) {
			continue
		}

		out = append(out, p.Clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out, nil
}

func (s *Store) ListSignatureRequests(_ context.Context, tenantID string, procedureID uuid.UUID) ([]*procedure.SignatureRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return listRequests(s.st, tenantID, procedureID), nil
}

func listRequests(st *state, tenantID string, procedureID uuid.UUID) []*procedure.SignatureRequest {
	var out []*procedure.SignatureRequest

	for _, r := range st.requests[procedureID] {
		if r.TenantID == tenantID {
			out = append(out, r.Clone())
		}
	}

	return out
}

func (s *Store) ListSigningTokens(_ context.Context, tenantID string, procedureID uuid.UUID) ([]*procedure.SigningToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return listTokens(s.st, tenantID, procedureID), nil
}

func listTokens(st *state, tenantID string, procedureID uuid.UUID) []*procedure.SigningToken {
	var out []*procedure.SigningToken

	for _, t := range st.tokens {
		if t.TenantID == tenantID && t.ProcedureID == procedureID {
			out = append(out, t.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out
}

func (s *Store) GetPayment(_ context.Context, tenantID string, procedureID uuid.UUID) (*procedure.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.st.payments[procedureID]
	if !ok || p.TenantID != tenantID {
		return nil, procedure.ErrNotFound
	}

	return new(*p), nil
}

func (s *Store) GetNotaryRequest(_ context.Context, tenantID string, procedureID uuid.UUID) (*procedure.NotaryRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.st.notary[procedureID]
	if !ok || n.TenantID != tenantID {
		return nil, procedure.ErrNotFound
	}

	return n.Clone(), nil
}

func (s *Store) ListGrants(_ context.Context, tenantID string, procedureID uuid.UUID) ([]*procedure.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return filterGrants(s.st, func(g *procedure.AccessGrant) bool {
		return g.TenantID == tenantID && g.ProcedureID == procedureID
	}), nil
}

func (s *Store) ListGrantsByGrantee(_ context.Context, granteeUID string) ([]*procedure.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return filterGrants(s.st, func(g *procedure.AccessGrant) bool { return g.GranteeUID == granteeUID }), nil
}

func filterGrants(st *state, keep func(*procedure.AccessGrant) bool) []*procedure.AccessGrant {
	var out []*procedure.AccessGrant

	for _, g := range st.grants {
		if keep(g) {
			out = append(out, g.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out
}

func (s *Store) GetSigningToken(_ context.Context, id uuid.UUID) (*procedure.SigningToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.st.tokens[id]
	if !ok {
		return nil, procedure.ErrNotFound
	}

	return t.Clone(), nil
}

func (s *Store) GetGrant(_ context.Context, id uuid.UUID) (*procedure.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.st.grants[id]
	if !ok {
		return nil, procedure.ErrNotFound
	}

	return g.Clone(), nil
}

// Begin holds the store lock until Commit or Rollback. Writes go to a
// private copy of the state that replaces the shared one on Commit.
func (s *Store) Begin(ctx context.Context, tenantID string, _ uuid.UUID) (procedure.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()

	return &tx{store: s, tenantID: tenantID, st: s.st.clone()}, nil
}
