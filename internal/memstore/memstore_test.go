package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/document"
	"github.com/MrJamesThe3rd/unpaper/internal/memstore"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
)

func newProcedure(tenantID string) *procedure.Procedure {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	return &procedure.Procedure{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Status:    procedure.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := newProcedure("acme")

	tx, err := s.Begin(ctx, "acme", p.ID)
	require.NoError(t, err)
	require.NoError(t, tx.CreateProcedure(ctx, p))

	_, err = tx.AppendAudit(ctx, audit.Entry{Action: audit.ActionProcedureCreated, ProcedureID: &p.ID})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = s.GetProcedure(ctx, "acme", p.ID)
	assert.ErrorIs(t, err, procedure.ErrNotFound)

	events, err := s.Audit().ListEvents(ctx, "acme", audit.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStore_UpdateProcedureChecksVersion(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := newProcedure("acme")

	tx, err := s.Begin(ctx, "acme", p.ID)
	require.NoError(t, err)
	require.NoError(t, tx.CreateProcedure(ctx, p))

	stale := p.Clone()

	p.Status = procedure.StatusReadyToSend
	require.NoError(t, tx.UpdateProcedure(ctx, p))
	assert.Equal(t, 2, p.Version)

	stale.Status = procedure.StatusCancelled
	assert.ErrorIs(t, tx.UpdateProcedure(ctx, stale), procedure.ErrConflict)
	require.NoError(t, tx.Commit())

	got, err := s.GetProcedure(ctx, "acme", p.ID)
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusReadyToSend, got.Status)

	_, err = s.GetProcedure(ctx, "globex", p.ID)
	assert.ErrorIs(t, err, procedure.ErrNotFound)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := newProcedure("acme")

	tx, err := s.Begin(ctx, "acme", p.ID)
	require.NoError(t, err)
	require.NoError(t, tx.CreateProcedure(ctx, p))
	require.NoError(t, tx.Commit())

	got, err := s.GetProcedure(ctx, "acme", p.ID)
	require.NoError(t, err)

	got.Status = procedure.StatusCompleted

	again, err := s.GetProcedure(ctx, "acme", p.ID)
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusDraft, again.Status)
}

func TestDocuments_Versioning(t *testing.T) {
	ctx := context.Background()
	docs := memstore.New().Documents()
	docID := uuid.New()

	for i := range 3 {
		v := &document.Version{ID: uuid.New(), TenantID: "acme", DocumentID: docID, Title: "Contrato", CreatedAt: time.Now().Add(time.Duration(i) * time.Second)}
		require.NoError(t, docs.CreateVersion(ctx, v, audit.Entry{Action: audit.ActionDocumentPublished}))
		assert.Equal(t, i+1, v.Version)
	}

	list, err := docs.ListVersions(ctx, "acme", document.ListFilter{DocumentID: &docID})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 3, list[0].Version)

	voided, err := docs.VoidVersion(ctx, "acme", list[0].ID, document.Void{At: time.Now(), By: "u1", Reason: "typo", Scope: document.VoidScopeFutureUse}, audit.Entry{Action: audit.ActionDocumentVoided})
	require.NoError(t, err)
	assert.True(t, voided.Voided())

	_, err = docs.VoidVersion(ctx, "acme", list[0].ID, document.Void{At: time.Now(), Reason: "again"}, audit.Entry{Action: audit.ActionDocumentVoided})
	assert.ErrorIs(t, err, document.ErrAlreadyVoided)

	_, err = docs.VoidVersion(ctx, "acme", uuid.New(), document.Void{At: time.Now(), Reason: "missing"}, audit.Entry{Action: audit.ActionDocumentVoided})
	assert.ErrorIs(t, err, document.ErrNotFound)

	_, err = docs.VoidVersion(ctx, "other", list[1].ID, document.Void{At: time.Now(), Reason: "foreign"}, audit.Entry{Action: audit.ActionDocumentVoided})
	assert.ErrorIs(t, err, document.ErrNotFound)

	available, err := docs.ListVersions(ctx, "acme", document.ListFilter{DocumentID: &docID})
	require.NoError(t, err)
	assert.Len(t, available, 2)
}
