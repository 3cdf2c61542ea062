package procedure_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/billing"
	"github.com/MrJamesThe3rd/unpaper/internal/document"
	"github.com/MrJamesThe3rd/unpaper/internal/memstore"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
)

const tenantID = "acme"

var (
	broker = auth.Actor{TenantID: tenantID, UID: "broker-1", Role: auth.RoleBroker}
	notary = auth.Actor{TenantID: tenantID, UID: "notary-1", Role: auth.RoleNotary}

	landlord = procedure.Party{Name: "Ana Rojas", RUT: "11.111.111-1", Email: "ana@example.com"}
	lessee   = procedure.Party{Name: "Pedro Soto", RUT: "22.222.222-2", Email: "pedro@example.com"}
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	svc     *procedure.Service
	store   *memstore.Store
	docs    *procedure.MockDocumentSource
	clock   *clock
	version *document.Version
}

func newFixture(t *testing.T, opts ...procedure.Option) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)

	version := &document.Version{
		ID:         uuid.New(),
		TenantID:   tenantID,
		DocumentID: uuid.New(),
		Title:      "Contrato de arriendo",
		Version:    2,
		Hash:       "9f86d081884c7d65",
	}

	docs := procedure.NewMockDocumentSource(ctrl)
	docs.EXPECT().GetAvailable(gomock.Any(), tenantID, version.ID).Return(version, nil).AnyTimes()
	docs.EXPECT().GetAvailable(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, document.ErrNotFound).AnyTimes()

	c := &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	store := memstore.New()

	opts = append([]procedure.Option{procedure.WithClock(c.Now)}, opts...)

	return &fixture{
		svc:     procedure.NewService(store, docs, opts...),
		store:   store,
		docs:    docs,
		clock:   c,
		version: version,
	}
}

type policy struct {
	identity procedure.IdentityMode
	payment  bool
	notary   bool
}

func (f *fixture) create(t *testing.T, pol policy) *procedure.Procedure {
	t.Helper()

	p, err := f.svc.Create(context.Background(), broker, procedure.CreateParams{
		IdentityPolicy:    procedure.IdentityPolicy{Mode: pol.identity},
		PaymentPolicy:     procedure.PaymentPolicy{RequireBeforeSignature: pol.payment},
		NotaryRequired:    pol.notary,
		DocumentVersionID: f.version.ID,
		Deal:              procedure.DealSnapshot{ID: "deal-7", Name: "Depto Providencia"},
		Landlord:          new(landlord),
		Tenant:            new(lessee),
	})
	require.NoError(t, err)

	return p
}

// invite creates a procedure, configures it and sends the invitations.
func (f *fixture) invite(t *testing.T, pol policy, participants ...procedure.ParticipantInput) *procedure.InviteResult {
	t.Helper()

	ctx := context.Background()
	p := f.create(t, pol)

	_, err := f.svc.Configure(ctx, broker, p.ID)
	require.NoError(t, err)

	res, err := f.svc.SendInvites(ctx, broker, p.ID, participants)
	require.NoError(t, err)
	require.Len(t, res.Tokens, len(res.Requests))

	return res
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *procedure.Procedure {
	t.Helper()

	p, err := f.svc.Get(context.Background(), broker, id)
	require.NoError(t, err)

	return p
}

func (f *fixture) requests(t *testing.T, id uuid.UUID) []*procedure.SignatureRequest {
	t.Helper()

	reqs, err := f.svc.SignatureRequests(context.Background(), broker, id)
	require.NoError(t, err)

	return reqs
}

func (f *fixture) token(t *testing.T, procedureID, tokenID uuid.UUID) *procedure.SigningToken {
	t.Helper()

	tokens, err := f.svc.SigningTokens(context.Background(), broker, procedureID)
	require.NoError(t, err)

	for _, tok := range tokens {
		if tok.ID == tokenID {
			return tok
		}
	}

	t.Fatalf("token %s not found", tokenID)

	return nil
}

func (f *fixture) actions(t *testing.T, id uuid.UUID) []string {
	t.Helper()

	events, err := f.store.Audit().ListEvents(context.Background(), tenantID, audit.ListFilter{ProcedureID: &id})
	require.NoError(t, err)

	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Action
	}

	return out
}

// statusTrail lists the statuses entered, in order, from the audit trail.
func (f *fixture) statusTrail(t *testing.T, id uuid.UUID) []string {
	t.Helper()

	events, err := f.store.Audit().ListEvents(context.Background(), tenantID, audit.ListFilter{
		ProcedureID: &id,
		Action:      audit.ActionStatusChanged,
	})
	require.NoError(t, err)

	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Meta["to"].(string)
	}

	return out
}

func (f *fixture) billingEvents(t *testing.T, id uuid.UUID) []*billing.Event {
	t.Helper()

	events, err := f.store.Billing().ListEvents(context.Background(), tenantID, billing.ListFilter{ProcedureID: &id})
	require.NoError(t, err)

	return events
}

// setAttempts rewrites a token's attempt counter directly in the store.
func (f *fixture) setAttempts(t *testing.T, tok *procedure.SigningToken, attempts int) {
	t.Helper()

	ctx := context.Background()

	tx, err := f.store.Begin(ctx, tok.TenantID, tok.ProcedureID)
	require.NoError(t, err)

	cur, err := tx.GetSigningToken(ctx, tok.ID)
	require.NoError(t, err)

	cur.Attempts = attempts
	require.NoError(t, tx.UpdateSigningToken(ctx, cur))
	require.NoError(t, tx.Commit())
}

func signer(p procedure.Party) procedure.ParticipantInput {
	return procedure.ParticipantInput{Participant: p, Role: procedure.RoleSigner}
}

func payer(p procedure.Party, role procedure.Role, percent int) procedure.ParticipantInput {
	return procedure.ParticipantInput{Participant: p, Role: role, PaymentPercent: &percent}
}

var errCommit = errors.New("commit failed")

// failingCommit rolls back instead of committing.
type failingCommit struct {
	procedure.Repository
}

func (r failingCommit) Begin(ctx context.Context, tenantID string, id uuid.UUID) (procedure.Tx, error) {
	tx, err := r.Repository.Begin(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	return failingTx{tx}, nil
}

type failingTx struct {
	procedure.Tx
}

func (t failingTx) Commit() error {
	_ = t.Tx.Rollback()
	return errCommit
}
