package procedure_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
)

func TestService_Create(t *testing.T) {
	type args struct {
		actor  auth.Actor
		params func(f *fixture) procedure.CreateParams
	}

	type testCase struct {
		name    string
		args    args
		wantErr error
	}

	tests := []testCase{
		{
			name: "Success",
			args: args{
				actor: broker,
				params: func(f *fixture) procedure.CreateParams {
					return procedure.CreateParams{DocumentVersionID: f.version.ID, Tenant: new(lessee)}
				},
			},
		},
		{
			name: "Forbidden",
			args: args{
				actor: notary,
				params: func(f *fixture) procedure.CreateParams {
					return procedure.CreateParams{DocumentVersionID: f.version.ID}
				},
			},
			wantErr: procedure.ErrForbidden,
		},
		{
			name: "InvalidIdentityMode",
			args: args{
				actor: broker,
				params: func(f *fixture) procedure.CreateParams {
					return procedure.CreateParams{
						DocumentVersionID: f.version.ID,
						IdentityPolicy:    procedure.IdentityPolicy{Mode: "fingerprint"},
					}
				},
			},
			wantErr: procedure.ErrInvalidPolicy,
		},
		{
			name: "UnknownDocumentVersion",
			args: args{
				actor: broker,
				params: func(_ *fixture) procedure.CreateParams {
					return procedure.CreateParams{DocumentVersionID: uuid.New()}
				},
			},
			wantErr: procedure.ErrDocumentUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			got, err := f.svc.Create(context.Background(), tt.args.actor, tt.args.params(f))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, procedure.StatusDraft, got.Status)
			assert.Equal(t, procedure.IdentityNone, got.IdentityPolicy.Mode)
			assert.Equal(t, f.version.ID, got.NotaryPacket.DocumentVersionRef.ID)
			assert.Equal(t, f.version.Hash, got.NotaryPacket.DocumentVersionRef.Hash)
			assert.Equal(t, "UF", got.Currency)
			assert.Equal(t, procedure.Flags{IdentityOK: true, PaymentsOK: true, NotaryOK: true}, got.Flags)
			assert.Equal(t, []string{audit.ActionProcedureCreated}, f.actions(t, got.ID))
		})
	}
}

func TestService_Create_PacketIsSnapshot(t *testing.T) {
	f := newFixture(t)

	party := lessee

	p, err := f.svc.Create(context.Background(), broker, procedure.CreateParams{
		DocumentVersionID: f.version.ID,
		Tenant:            &party,
	})
	require.NoError(t, err)

	party.Name = "Someone Else"

	assert.Equal(t, lessee.Name, f.get(t, p.ID).NotaryPacket.Tenant.Name)
}

// A single signer with no identity, payment or notary requirement completes
// as soon as they sign.
func TestService_SingleSignerCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone})
	id := res.Procedure.ID

	assert.Equal(t, procedure.StatusInSignature, res.Procedure.Status)
	require.Len(t, res.Requests, 1)
	assert.Equal(t, procedure.RoleSigner, res.Requests[0].Role)
	assert.Equal(t, procedure.PaymentNotRequired, res.Requests[0].Payment.Status)

	got, err := f.svc.RecordSignature(ctx, res.Tokens[0].ID, procedure.SignatureInput{IP: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)

	assert.Equal(t, procedure.StatusCompleted, got.Procedure.Status)
	assert.True(t, got.Procedure.Flags.SignaturesOK)
	require.NotNil(t, got.Procedure.CompletedAt)
	require.NotNil(t, got.Billing)
	assert.True(t, decimal.NewFromInt(29990).Equal(got.Billing.Amount))
	assert.Equal(t, "CLP", got.Billing.Currency)

	assert.Equal(t, []string{"ready_to_send", "in_signature", "fully_signed", "completed"}, f.statusTrail(t, id))
	assert.Len(t, f.billingEvents(t, id), 1)
	assert.Contains(t, f.actions(t, id), audit.ActionSignatureSubmitted)
	assert.Contains(t, f.actions(t, id), audit.ActionProcedureCompleted)

	_, err = f.svc.Complete(ctx, broker, id)
	assert.ErrorIs(t, err, procedure.ErrIllegalTransition)

	_, err = f.svc.OpenNotary(ctx, broker, id)
	assert.ErrorIs(t, err, procedure.ErrIllegalTransition)

	assert.Len(t, f.billingEvents(t, id), 1)

	notifications, err := f.store.Providers().ListEvents(ctx, tenantID, provider.ListFilter{Provider: provider.Brevo})
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
}

func TestService_SplitPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone, payment: true},
		payer(landlord, procedure.RoleSignerPayer, 60),
		payer(lessee, procedure.RoleSignerPayer, 40),
	)
	id := res.Procedure.ID

	assert.Equal(t, procedure.StatusInPayment, res.Procedure.Status)
	assert.Equal(t, 60, res.Requests[0].PaymentPercent)
	assert.Equal(t, 40, res.Requests[1].PaymentPercent)

	// Signing before the aggregate clears is not a legal move yet.
	_, err := f.svc.RecordSignature(ctx, res.Tokens[0].ID, procedure.SignatureInput{})
	assert.ErrorIs(t, err, procedure.ErrIllegalTransition)

	first, err := f.svc.RecordPayment(ctx, res.Tokens[0].ID, procedure.PaymentInput{Provider: provider.Transbank, ExternalID: "tbk-1"})
	require.NoError(t, err)

	assert.Equal(t, 60, first.Payment.PaidPercent)
	assert.Equal(t, procedure.AggregatePending, first.Payment.Status)
	assert.False(t, first.Procedure.Flags.PaymentsOK)
	assert.Equal(t, procedure.StatusInPayment, first.Procedure.Status)

	second, err := f.svc.RecordPayment(ctx, res.Tokens[1].ID, procedure.PaymentInput{Provider: provider.Transbank, ExternalID: "tbk-2"})
	require.NoError(t, err)

	assert.Equal(t, 100, second.Payment.PaidPercent)
	assert.Equal(t, procedure.AggregatePaid, second.Payment.Status)
	assert.True(t, second.Procedure.Flags.PaymentsOK)
	assert.Equal(t, procedure.StatusInSignature, second.Procedure.Status)

	one, err := f.svc.RecordSignature(ctx, res.Tokens[0].ID, procedure.SignatureInput{})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusPartiallySigned, one.Procedure.Status)

	all, err := f.svc.RecordSignature(ctx, res.Tokens[1].ID, procedure.SignatureInput{})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusCompleted, all.Procedure.Status)

	assert.Equal(t,
		[]string{"ready_to_send", "in_payment", "in_signature", "partially_signed", "fully_signed", "completed"},
		f.statusTrail(t, id),
	)
}

func TestService_RecordPayment_Duplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone, payment: true},
		payer(landlord, procedure.RoleSignerPayer, 50),
		payer(lessee, procedure.RoleSignerPayer, 50),
	)

	in := procedure.PaymentInput{Provider: provider.Transbank, ExternalID: "tbk-1"}

	_, err := f.svc.RecordPayment(ctx, res.Tokens[0].ID, in)
	require.NoError(t, err)

	again, err := f.svc.RecordPayment(ctx, res.Tokens[0].ID, in)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, 50, again.Payment.PaidPercent)

	// The same provider reference presented for the other participant is
	// also a replay.
	replay, err := f.svc.RecordPayment(ctx, res.Tokens[1].ID, in)
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, 50, replay.Payment.PaidPercent)
	assert.Equal(t, procedure.PaymentPending, f.requests(t, res.Procedure.ID)[1].Payment.Status)
}

func TestService_RecordPayment_NotPayer(t *testing.T) {
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone}, signer(lessee))

	_, err := f.svc.RecordPayment(context.Background(), res.Tokens[0].ID, procedure.PaymentInput{Provider: provider.Transbank, ExternalID: "tbk-1"})
	assert.ErrorIs(t, err, procedure.ErrNotPayer)
	assert.ErrorIs(t, err, procedure.ErrForbidden)
}

func TestService_RecordProviderPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone, payment: true}, payer(lessee, procedure.RoleSignerPayer, 100))

	got, err := f.svc.RecordProviderPayment(ctx, tenantID, res.Procedure.ID, res.Requests[0].ID, procedure.PaymentInput{
		Provider:   provider.Transbank,
		ExternalID: "tbk-9",
		Payload:    map[string]any{"authorizationCode": "1213"},
	})
	require.NoError(t, err)

	assert.Equal(t, procedure.StatusInSignature, got.Procedure.Status)
	assert.Equal(t, procedure.PaymentPaid, got.Request.Payment.Status)

	_, err = f.svc.RecordProviderPayment(ctx, tenantID, res.Procedure.ID, uuid.New(), procedure.PaymentInput{Provider: provider.Transbank, ExternalID: "tbk-10"})
	assert.ErrorIs(t, err, procedure.ErrNotFound)
}

func TestService_BlockedToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone}, signer(lessee))
	id := res.Procedure.ID
	tok := res.Tokens[0]

	f.setAttempts(t, tok, procedure.DefaultMaxAttempts)

	_, err := f.svc.RecordSignature(ctx, tok.ID, procedure.SignatureInput{})
	require.ErrorIs(t, err, procedure.ErrTokenBlocked)

	assert.Equal(t, procedure.TokenBlocked, f.token(t, id, tok.ID).Status)
	assert.Equal(t, procedure.StatusInSignature, f.get(t, id).Status)

	reqs := f.requests(t, id)
	assert.Equal(t, procedure.RequestPending, reqs[0].Status)
	assert.Nil(t, reqs[0].Signature)
	assert.Contains(t, f.actions(t, id), audit.ActionTokenBlocked)

	blocked, err := f.store.Audit().ListEvents(ctx, tenantID, audit.ListFilter{ProcedureID: &id, Action: audit.ActionTokenBlocked})
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, "participant:"+tok.SignatureRequestID.String(), blocked[0].ActorUID)

	_, err = f.svc.RecordSignature(ctx, tok.ID, procedure.SignatureInput{})
	assert.ErrorIs(t, err, procedure.ErrTokenBlocked)
}

func TestService_TokenAttemptsCountFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, procedure.WithSettings(procedure.Settings{
		TokenTTL:    time.Hour,
		MaxAttempts: 2,
		GrantTTL:    time.Hour,
	}))

	res := f.invite(t, policy{identity: procedure.IdentityClaveUnicaOnly}, signer(lessee))
	tok := res.Tokens[0]

	for range 2 {
		_, err := f.svc.RecordSignature(ctx, tok.ID, procedure.SignatureInput{})
		assert.ErrorIs(t, err, procedure.ErrIllegalTransition)
	}

	assert.Equal(t, 2, f.token(t, res.Procedure.ID, tok.ID).Attempts)

	_, err := f.svc.RecordIdentityEvidence(ctx, tok.ID, procedure.IdentityClaveUnica, procedure.Evidence{Provider: "claveunica"})
	assert.ErrorIs(t, err, procedure.ErrTokenBlocked)
}

func TestService_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone}, signer(lessee))
	tok := res.Tokens[0]

	f.clock.Advance(procedure.DefaultSettings().TokenTTL + time.Minute)

	_, err := f.svc.OpenSigningSession(ctx, tok.ID)
	assert.ErrorIs(t, err, procedure.ErrTokenExpired)

	_, err = f.svc.RecordSignature(ctx, tok.ID, procedure.SignatureInput{})
	assert.ErrorIs(t, err, procedure.ErrTokenExpired)

	assert.Equal(t, procedure.TokenExpired, f.token(t, res.Procedure.ID, tok.ID).Status)
	assert.Equal(t, procedure.RequestPending, f.requests(t, res.Procedure.ID)[0].Status)
}

func TestService_UsedToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone}, signer(landlord), signer(lessee))
	tok := res.Tokens[0]

	_, err := f.svc.RecordSignature(ctx, tok.ID, procedure.SignatureInput{})
	require.NoError(t, err)

	_, err = f.svc.RecordSignature(ctx, tok.ID, procedure.SignatureInput{})
	assert.ErrorIs(t, err, procedure.ErrTokenUsed)

	_, err = f.svc.OpenSigningSession(ctx, uuid.New())
	assert.ErrorIs(t, err, procedure.ErrTokenInvalid)

	assert.Equal(t, procedure.StatusPartiallySigned, f.get(t, res.Procedure.ID).Status)
}

func TestService_RegenerateLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone}, signer(lessee))
	old := res.Tokens[0]

	fresh, err := f.svc.RegenerateLink(ctx, broker, res.Procedure.ID, res.Requests[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)

	_, err = f.svc.RecordSignature(ctx, old.ID, procedure.SignatureInput{})
	assert.ErrorIs(t, err, procedure.ErrTokenRevoked)

	got, err := f.svc.RecordSignature(ctx, fresh.ID, procedure.SignatureInput{})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusCompleted, got.Procedure.Status)

	_, err = f.svc.RegenerateLink(ctx, broker, res.Procedure.ID, res.Requests[0].ID)
	assert.ErrorIs(t, err, procedure.ErrPrecondition)
}

func TestService_IdentityFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityBoth}, signer(landlord), signer(lessee))
	id := res.Procedure.ID
	first, second := res.Tokens[0].ID, res.Tokens[1].ID

	assert.Equal(t, procedure.StatusInIdentity, res.Procedure.Status)

	_, err := f.svc.RecordIdentityEvidence(ctx, first, procedure.IdentityBiometrics, procedure.Evidence{Provider: "facetec"})
	assert.ErrorIs(t, err, procedure.ErrBiometricsBeforeClaveUnica)
	assert.Nil(t, f.requests(t, id)[0].Identity.Biometrics)

	got, err := f.svc.RecordIdentityEvidence(ctx, first, procedure.IdentityClaveUnica, procedure.Evidence{Provider: "claveunica"})
	require.NoError(t, err)
	assert.False(t, got.Verified)

	got, err = f.svc.RecordIdentityEvidence(ctx, first, procedure.IdentityBiometrics, procedure.Evidence{Provider: "facetec"})
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, procedure.StatusInIdentity, got.Procedure.Status)

	session, err := f.svc.OpenSigningSession(ctx, first)
	require.NoError(t, err)
	assert.True(t, session.IdentityVerified)
	assert.ErrorIs(t, session.SignBlocker, procedure.ErrIllegalTransition)

	_, err = f.svc.RecordIdentityEvidence(ctx, second, procedure.IdentityClaveUnica, procedure.Evidence{Provider: "claveunica"})
	require.NoError(t, err)

	got, err = f.svc.RecordIdentityEvidence(ctx, second, procedure.IdentityBiometrics, procedure.Evidence{Provider: "facetec"})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusInSignature, got.Procedure.Status)
	assert.True(t, got.Procedure.Flags.IdentityOK)

	session, err = f.svc.OpenSigningSession(ctx, first)
	require.NoError(t, err)
	assert.NoError(t, session.SignBlocker)
}

func TestService_PaymentBeforeIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityClaveUnicaOnly, payment: true},
		payer(lessee, procedure.RoleSignerPayer, 100))
	id := res.Procedure.ID
	tok := res.Tokens[0].ID

	f.clock.Advance(time.Minute)

	paid, err := f.svc.RecordPayment(ctx, tok, procedure.PaymentInput{Provider: provider.Transbank, ExternalID: "tbk-100"})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusInIdentity, paid.Procedure.Status)
	assert.True(t, paid.Procedure.Flags.PaymentsOK)
	assert.True(t, paid.Payment.Paid())

	f.clock.Advance(time.Minute)

	verified, err := f.svc.RecordIdentityEvidence(ctx, tok, procedure.IdentityClaveUnica, procedure.Evidence{Provider: "claveunica"})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusInSignature, verified.Procedure.Status)
	assert.True(t, verified.Procedure.Flags.IdentityOK)

	f.clock.Advance(time.Minute)

	signed, err := f.svc.RecordSignature(ctx, tok, procedure.SignatureInput{IP: "10.0.0.2"})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusCompleted, signed.Procedure.Status)

	assert.Equal(t, []string{
		"ready_to_send", "in_identity", "in_payment", "in_signature", "fully_signed", "completed",
	}, f.statusTrail(t, id))

	require.NotNil(t, signed.Billing)
	assert.True(t, f.clock.now.Equal(signed.Billing.CreatedAt))

	changes, err := f.store.Audit().ListEvents(ctx, tenantID, audit.ListFilter{ProcedureID: &id, Action: audit.ActionStatusChanged})
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	assert.True(t, signed.Procedure.UpdatedAt.Equal(changes[len(changes)-1].CreatedAt))

	payments, err := f.store.Providers().ListEvents(ctx, tenantID, provider.ListFilter{Provider: provider.Transbank})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, f.clock.now.Add(-2*time.Minute).Equal(payments[0].CreatedAt))
}

func TestService_NotaryFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone, notary: true}, signer(lessee))
	id := res.Procedure.ID

	_, err := f.svc.GrantNotaryAccess(ctx, broker, id, procedure.GrantParams{GranteeUID: notary.UID})
	assert.ErrorIs(t, err, procedure.ErrNotaryNotPending)

	signed, err := f.svc.RecordSignature(ctx, res.Tokens[0].ID, procedure.SignatureInput{})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusNotaryPending, signed.Procedure.Status)
	assert.Nil(t, signed.Billing)

	_, err = f.svc.Complete(ctx, broker, id)
	assert.ErrorIs(t, err, procedure.ErrIllegalTransition)

	grant, err := f.svc.GrantNotaryAccess(ctx, broker, id, procedure.GrantParams{GranteeUID: notary.UID})
	require.NoError(t, err)
	assert.ElementsMatch(t, procedure.AllScopes, grant.Scopes)
	assert.Equal(t, f.clock.Now().Add(procedure.DefaultSettings().GrantTTL), grant.ExpiresAt)
	assert.Equal(t, notary.UID, *f.get(t, id).AssignedNotary)

	inbox, err := f.svc.NotaryInbox(ctx, notary)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, id, inbox[0].Procedure.ID)
	assert.Equal(t, []procedure.Event{procedure.EventNotaryOpens, procedure.EventNotaryReject}, inbox[0].Actions)

	opened, err := f.svc.NotaryAction(ctx, notary, grant.ID, procedure.EventNotaryOpens, procedure.NotaryInput{})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusNotaryInReview, opened.Procedure.Status)
	assert.Equal(t, procedure.NotaryRequestInReview, opened.Request.Status)

	_, err = f.svc.NotaryAction(ctx, notary, grant.ID, procedure.EventNotaryUploadApprove, procedure.NotaryInput{})
	assert.ErrorIs(t, err, procedure.ErrMissingFileName)

	approved, err := f.svc.NotaryAction(ctx, notary, grant.ID, procedure.EventNotaryUploadApprove, procedure.NotaryInput{FileName: "legalizado.pdf"})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusNotaryApproved, approved.Procedure.Status)
	assert.True(t, approved.Procedure.Flags.NotaryOK)
	assert.Equal(t, "legalizado.pdf", approved.Request.LegalizedFileName)

	done, err := f.svc.Complete(ctx, broker, id)
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusCompleted, done.Status)
	assert.Len(t, f.billingEvents(t, id), 1)

	assert.Equal(t,
		[]string{"ready_to_send", "in_signature", "fully_signed", "notary_pending", "notary_in_review", "notary_approved", "completed"},
		f.statusTrail(t, id),
	)
}

func TestService_NotaryAction_MissingScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone, notary: true}, signer(lessee))
	id := res.Procedure.ID

	_, err := f.svc.RecordSignature(ctx, res.Tokens[0].ID, procedure.SignatureInput{})
	require.NoError(t, err)

	grant, err := f.svc.GrantNotaryAccess(ctx, broker, id, procedure.GrantParams{
		GranteeUID: notary.UID,
		Scopes:     []procedure.Scope{procedure.ScopeRead},
	})
	require.NoError(t, err)

	_, err = f.svc.NotaryAction(ctx, notary, grant.ID, procedure.EventNotaryOpens, procedure.NotaryInput{})
	require.NoError(t, err)

	before := f.actions(t, id)

	_, err = f.svc.NotaryAction(ctx, notary, grant.ID, procedure.EventNotaryUploadApprove, procedure.NotaryInput{FileName: "legalizado.pdf"})
	assert.ErrorIs(t, err, procedure.ErrForbidden)

	assert.Equal(t, procedure.StatusNotaryInReview, f.get(t, id).Status)
	assert.Equal(t, before, f.actions(t, id))
}

func TestService_NotaryAction_GrantChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone, notary: true}, signer(lessee))
	id := res.Procedure.ID

	_, err := f.svc.RecordSignature(ctx, res.Tokens[0].ID, procedure.SignatureInput{})
	require.NoError(t, err)

	grant, err := f.svc.GrantNotaryAccess(ctx, broker, id, procedure.GrantParams{GranteeUID: notary.UID, TTL: time.Hour})
	require.NoError(t, err)

	stranger := auth.Actor{TenantID: tenantID, UID: "notary-2", Role: auth.RoleNotary}

	_, err = f.svc.NotaryAction(ctx, stranger, grant.ID, procedure.EventNotaryOpens, procedure.NotaryInput{})
	assert.ErrorIs(t, err, procedure.ErrForbidden)

	_, err = f.svc.NotaryAction(ctx, notary, uuid.New(), procedure.EventNotaryOpens, procedure.NotaryInput{})
	assert.ErrorIs(t, err, procedure.ErrForbidden)

	_, err = f.svc.NotaryAction(ctx, notary, grant.ID, procedure.EventComplete, procedure.NotaryInput{})
	assert.ErrorIs(t, err, procedure.ErrPrecondition)

	f.clock.Advance(2 * time.Hour)

	_, err = f.svc.NotaryAction(ctx, notary, grant.ID, procedure.EventNotaryOpens, procedure.NotaryInput{})
	assert.ErrorIs(t, err, procedure.ErrForbidden)

	inbox, err := f.svc.NotaryInbox(ctx, notary)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	assert.Equal(t, procedure.StatusNotaryPending, f.get(t, id).Status)
}

func TestService_NotaryReject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone, notary: true}, signer(lessee))
	id := res.Procedure.ID

	_, err := f.svc.RecordSignature(ctx, res.Tokens[0].ID, procedure.SignatureInput{})
	require.NoError(t, err)

	grant, err := f.svc.GrantNotaryAccess(ctx, broker, id, procedure.GrantParams{GranteeUID: notary.UID})
	require.NoError(t, err)

	_, err = f.svc.NotaryAction(ctx, notary, grant.ID, procedure.EventNotaryReject, procedure.NotaryInput{})
	assert.ErrorIs(t, err, procedure.ErrMissingReason)

	got, err := f.svc.NotaryAction(ctx, notary, grant.ID, procedure.EventNotaryReject, procedure.NotaryInput{Reason: "firma ilegible"})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusRejected, got.Procedure.Status)
	assert.Equal(t, "firma ilegible", got.Request.Reason)

	_, err = f.svc.RevokeGrant(ctx, broker, grant.ID)
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, broker, id)
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusCancelled, cancelled.Status)
	assert.Empty(t, f.billingEvents(t, id))
}

func TestService_SendInvites_Errors(t *testing.T) {
	type args struct {
		pol          policy
		configure    bool
		participants []procedure.ParticipantInput
	}

	type testCase struct {
		name    string
		args    args
		wantErr error
	}

	tests := []testCase{
		{
			name:    "FromDraft",
			args:    args{pol: policy{identity: procedure.IdentityNone}},
			wantErr: procedure.ErrIllegalTransition,
		},
		{
			name: "SplitShort",
			args: args{
				pol:       policy{identity: procedure.IdentityNone, payment: true},
				configure: true,
				participants: []procedure.ParticipantInput{
					payer(landlord, procedure.RoleSignerPayer, 50),
					payer(lessee, procedure.RoleSignerPayer, 30),
				},
			},
			wantErr: procedure.ErrPaymentSplit,
		},
		{
			name: "PaymentRequiredWithoutPayer",
			args: args{
				pol:          policy{identity: procedure.IdentityNone, payment: true},
				configure:    true,
				participants: []procedure.ParticipantInput{signer(lessee)},
			},
			wantErr: procedure.ErrPaymentSplit,
		},
		{
			name: "UnknownRole",
			args: args{
				pol:          policy{identity: procedure.IdentityNone},
				configure:    true,
				participants: []procedure.ParticipantInput{{Participant: lessee, Role: "witness"}},
			},
			wantErr: procedure.ErrPrecondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			p := f.create(t, tt.args.pol)

			if tt.args.configure {
				_, err := f.svc.Configure(ctx, broker, p.ID)
				require.NoError(t, err)
			}

			before := f.get(t, p.ID)

			_, err := f.svc.SendInvites(ctx, broker, p.ID, tt.args.participants)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, before, f.get(t, p.ID))
			assert.Empty(t, f.requests(t, p.ID))
		})
	}
}

func TestService_SendInvites_DefaultParticipant(t *testing.T) {
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone, payment: true})

	require.Len(t, res.Requests, 1)
	assert.Equal(t, lessee.Name, res.Requests[0].Participant.Name)
	assert.Equal(t, procedure.RoleSignerPayer, res.Requests[0].Role)
	assert.Equal(t, 100, res.Requests[0].PaymentPercent)
	assert.Equal(t, procedure.StatusInPayment, res.Procedure.Status)
}

func TestService_Cancel_RevokesLinks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityNone}, signer(landlord), signer(lessee))

	_, err := f.svc.Cancel(ctx, broker, res.Procedure.ID)
	require.NoError(t, err)

	for _, tok := range res.Tokens {
		assert.Equal(t, procedure.TokenRevoked, f.token(t, res.Procedure.ID, tok.ID).Status)
	}

	_, err = f.svc.RecordSignature(ctx, res.Tokens[0].ID, procedure.SignatureInput{})
	assert.ErrorIs(t, err, procedure.ErrTokenRevoked)

	_, err = f.svc.Cancel(ctx, broker, res.Procedure.ID)
	assert.ErrorIs(t, err, procedure.ErrIllegalTransition)
}

func TestService_Expire(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.invite(t, policy{identity: procedure.IdentityEither}, signer(lessee))

	got, err := f.svc.Expire(ctx, broker, res.Procedure.ID)
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusExpired, got.Status)
	assert.Contains(t, f.actions(t, got.ID), audit.ActionProcedureExpired)
}

func TestService_CommitFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.create(t, policy{identity: procedure.IdentityNone})

	failing := procedure.NewService(failingCommit{f.store}, f.docs, procedure.WithClock(f.clock.Now))
	before := f.actions(t, p.ID)

	_, err := failing.Configure(ctx, broker, p.ID)
	require.ErrorIs(t, err, errCommit)

	assert.Equal(t, procedure.StatusDraft, f.get(t, p.ID).Status)
	assert.Equal(t, before, f.actions(t, p.ID))

	_, err = f.svc.Configure(ctx, broker, p.ID)
	require.NoError(t, err)

	_, err = failing.SendInvites(ctx, broker, p.ID, []procedure.ParticipantInput{signer(lessee)})
	require.ErrorIs(t, err, errCommit)

	assert.Equal(t, procedure.StatusReadyToSend, f.get(t, p.ID).Status)
	assert.Empty(t, f.requests(t, p.ID))
}

func TestService_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.create(t, policy{identity: procedure.IdentityNone})

	other := auth.Actor{TenantID: "globex", UID: "broker-9", Role: auth.RoleBroker}

	_, err := f.svc.Get(ctx, other, p.ID)
	assert.ErrorIs(t, err, procedure.ErrNotFound)

	_, err = f.svc.Configure(ctx, other, p.ID)
	assert.ErrorIs(t, err, procedure.ErrNotFound)

	list, err := f.svc.List(ctx, other, procedure.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.svc.List(ctx, broker, procedure.ListFilter{Search: "provi"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_CreateExpress(t *testing.T) {
	type args struct {
		kind  procedure.ExpressKind
		payer procedure.PayerMode
		extra *procedure.Party
	}

	type testCase struct {
		name       string
		args       args
		wantNotary bool
		wantRoles  []procedure.Role
		wantErr    error
	}

	tests := []testCase{
		{
			name:       "CertificationTenantPays",
			args:       args{kind: procedure.ExpressCertification, payer: procedure.PayerTenant},
			wantNotary: true,
			wantRoles:  []procedure.Role{procedure.RoleSigner, procedure.RoleSignerPayer},
		},
		{
			name:      "SimpleSignatureSeparatePayer",
			args:      args{kind: procedure.ExpressSimple, payer: procedure.PayerSeparate, extra: &procedure.Party{Name: "Aval", Email: "aval@example.com"}},
			wantRoles: []procedure.Role{procedure.RoleSigner, procedure.RoleSigner, procedure.RolePayer},
		},
		{
			name:    "SeparatePayerMissing",
			args:    args{kind: procedure.ExpressProtocol, payer: procedure.PayerSeparate},
			wantErr: procedure.ErrPrecondition,
		},
		{
			name:    "UnknownKind",
			args:    args{kind: "mail", payer: procedure.PayerLandlord},
			wantErr: procedure.ErrPrecondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			got, err := f.svc.CreateExpress(context.Background(), broker, procedure.ExpressParams{
				Kind:              tt.args.kind,
				PayerMode:         tt.args.payer,
				Landlord:          landlord,
				Tenant:            lessee,
				Payer:             tt.args.extra,
				DocumentVersionID: f.version.ID,
				Deal:              procedure.DealSnapshot{Name: "Casa Ñuñoa"},
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, procedure.StatusInIdentity, got.Procedure.Status)
			assert.Equal(t, procedure.IdentityBoth, got.Procedure.IdentityPolicy.Mode)
			assert.True(t, got.Procedure.PaymentPolicy.RequireBeforeSignature)
			assert.Equal(t, tt.wantNotary, got.Procedure.NotaryRequired)

			roles := make([]procedure.Role, len(got.Requests))
			for i, r := range got.Requests {
				roles[i] = r.Role
			}

			assert.Equal(t, tt.wantRoles, roles)
			assert.Len(t, got.Tokens, len(got.Requests))
			assert.Equal(t, []string{"ready_to_send", "in_identity"}, f.statusTrail(t, got.Procedure.ID))
		})
	}
}

func TestService_CreateExpress_SignsThrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.CreateExpress(ctx, broker, procedure.ExpressParams{
		Kind:              procedure.ExpressSimple,
		PayerMode:         procedure.PayerTenant,
		Landlord:          landlord,
		Tenant:            lessee,
		DocumentVersionID: f.version.ID,
		Deal:              procedure.DealSnapshot{Name: "Casa Ñuñoa"},
	})
	require.NoError(t, err)

	id := res.Procedure.ID
	landlordTok, tenantTok := res.Tokens[0].ID, res.Tokens[1].ID

	paid, err := f.svc.RecordPayment(ctx, tenantTok, procedure.PaymentInput{Provider: provider.Transbank, ExternalID: "tbk-express"})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusInIdentity, paid.Procedure.Status)

	for _, tok := range []uuid.UUID{landlordTok, tenantTok} {
		_, err := f.svc.RecordIdentityEvidence(ctx, tok, procedure.IdentityClaveUnica, procedure.Evidence{Provider: "claveunica"})
		require.NoError(t, err)

		_, err = f.svc.RecordIdentityEvidence(ctx, tok, procedure.IdentityBiometrics, procedure.Evidence{Provider: "facetec"})
		require.NoError(t, err)
	}

	assert.Equal(t, procedure.StatusInSignature, f.get(t, id).Status)

	first, err := f.svc.RecordSignature(ctx, landlordTok, procedure.SignatureInput{IP: "10.0.0.3"})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusPartiallySigned, first.Procedure.Status)

	last, err := f.svc.RecordSignature(ctx, tenantTok, procedure.SignatureInput{IP: "10.0.0.4"})
	require.NoError(t, err)
	assert.Equal(t, procedure.StatusCompleted, last.Procedure.Status)
	assert.NotNil(t, last.Billing)

	assert.Equal(t, []string{
		"ready_to_send", "in_identity", "in_payment", "in_signature", "partially_signed", "fully_signed", "completed",
	}, f.statusTrail(t, id))
	assert.Len(t, f.billingEvents(t, id), 1)
}
