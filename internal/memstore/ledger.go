package memstore

import (
	"context"
	"maps"
	"sort"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/billing"
	"github.com/MrJamesThe3rd/unpaper/internal/document"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
)

// Audit, Billing, Providers and Documents expose the store through the
// read-side repository of each package. Their ListEvents methods share a
// name, so each gets its own view type.
type (
	Audit     struct{ s *Store }
	Billing   struct{ s *Store }
	Providers struct{ s *Store }
	Documents struct{ s *Store }
)

var (
	_ audit.Repository    = Audit{}
	_ billing.Repository  = Billing{}
	_ provider.Repository = Providers{}
	_ document.Repository = Documents{}
)

func (s *Store) Audit() Audit         { return Audit{s} }
func (s *Store) Billing() Billing     { return Billing{s} }
func (s *Store) Providers() Providers { return Providers{s} }
func (s *Store) Documents() Documents { return Documents{s} }

func (a Audit) ListEvents(_ context.Context, tenantID string, filter audit.ListFilter) ([]*audit.Event, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	var out []*audit.Event

	for _, ev := range a.s.st.audit {
		if ev.TenantID != tenantID || (filter.Action != "" && ev.Action != filter.Action) {
			continue
		}

		if filter.ProcedureID != nil && (ev.ProcedureID == nil || *ev.ProcedureID != *filter.ProcedureID) {
			continue
		}

		out = append(out, ev)

		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}

	return out, nil
}

func (b Billing) ListEvents(_ context.Context, tenantID string, filter billing.ListFilter) ([]*billing.Event, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	var out []*billing.Event

	for _, ev := range b.s.st.billing {
		if ev.TenantID != tenantID || (filter.Type != "" && ev.Type != filter.Type) {
			continue
		}

		if filter.ProcedureID != nil && ev.ProcedureID != *filter.ProcedureID {
			continue
		}

		out = append(out, ev)
	}

	return out, nil
}

func (p Providers) ListEvents(_ context.Context, tenantID string, filter provider.ListFilter) ([]*provider.Event, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	var out []*provider.Event

	for _, ev := range p.s.st.providers {
		if ev.TenantID == tenantID && (filter.Provider == "" || ev.Provider == filter.Provider) {
			out = append(out, ev)
		}
	}

	return out, nil
}

func cloneVersion(v *document.Version) *document.Version {
	out := *v
	out.Content = v.Content

	if v.VoidedAt != nil {
		out.VoidedAt = new(*v.VoidedAt)
	}

	return &out
}

func (d Documents) CreateVersion(_ context.Context, v *document.Version, entry audit.Entry) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	st := d.s.st
	latest := 0

	for _, cur := range st.versions {
		if cur.TenantID == v.TenantID && cur.DocumentID == v.DocumentID {
			latest = max(latest, cur.Version)
		}
	}

	v.Version = latest + 1
	st.versions[v.ID] = cloneVersion(v)

	entry.Meta = maps.Clone(entry.Meta)
	if entry.Meta == nil {
		entry.Meta = map[string]any{}
	}

	entry.Meta["version"] = v.Version

	d.s.appendAudit(st, v.TenantID, entry)

	return nil
}

func (d Documents) GetVersion(_ context.Context, tenantID string, id uuid.UUID) (*document.Version, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	v, ok := d.s.st.versions[id]
	if !ok || v.TenantID != tenantID {
		return nil, document.ErrNotFound
	}

	return cloneVersion(v), nil
}

func (d Documents) ListVersions(_ context.Context, tenantID string, filter document.ListFilter) ([]*document.Version, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	var out []*document.Version

	for _, v := range d.s.st.versions {
		if v.TenantID != tenantID || (!filter.IncludeVoided && v.Voided()) {
			continue
		}

		if filter.DocumentID != nil && v.DocumentID != *filter.DocumentID {
			continue
		}

		if filter.DealID != "" && v.DealID != filter.DealID {
			continue
		}

		out = append(out, cloneVersion(v))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}

		return out[i].Version > out[j].Version
	})

	return out, nil
}

func (d Documents) VoidVersion(_ context.Context, tenantID string, id uuid.UUID, void document.Void, entry audit.Entry) (*document.Version, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	cur, ok := d.s.st.versions[id]
	if !ok || cur.TenantID != tenantID {
		return nil, document.ErrNotFound
	}

	if cur.Voided() {
		return nil, document.ErrAlreadyVoided
	}

	v := cloneVersion(cur)
	v.VoidedAt = new(void.At)
	v.VoidedBy = void.By
	v.VoidReason = void.Reason
	v.VoidScope = void.Scope
	d.s.st.versions[id] = v

	d.s.appendAudit(d.s.st, tenantID, entry)

	return cloneVersion(v), nil
}
