package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	auditStore "github.com/MrJamesThe3rd/unpaper/internal/audit/store"
	"github.com/MrJamesThe3rd/unpaper/internal/billing"
	billingStore "github.com/MrJamesThe3rd/unpaper/internal/billing/store"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
	providerStore "github.com/MrJamesThe3rd/unpaper/internal/provider/store"
)

type procedureTx struct {
	tx       *sql.Tx
	tenantID string
	q        queries
	audit    *auditStore.Store
	billing  *billingStore.Store
	provider *providerStore.Store
}

var _ procedure.Tx = (*procedureTx)(nil)

func newTx(tx *sql.Tx, tenantID string) *procedureTx {
	return &procedureTx{
		tx:       tx,
		tenantID: tenantID,
		q:        queries{tx},
		audit:    auditStore.New(tx),
		billing:  billingStore.New(tx),
		provider: providerStore.New(tx),
	}
}

func (t *procedureTx) Commit() error   { return t.tx.Commit() }
func (t *procedureTx) Rollback() error { return t.tx.Rollback() }

func (t *procedureTx) GetProcedure(ctx context.Context, id uuid.UUID) (*procedure.Procedure, error) {
	return t.q.getProcedure(ctx, t.tenantID, id, true)
}

func (t *procedureTx) CreateProcedure(ctx context.Context, p *procedure.Procedure) error {
	flags, err := json.Marshal(p.Flags)
	if err != nil {
		return fmt.Errorf("encoding flags: %w", err)
	}

	packet, err := json.Marshal(p.NotaryPacket)
	if err != nil {
		return fmt.Errorf("encoding notary packet: %w", err)
	}

	query := `
		INSERT INTO procedures (
			id, tenant_id, status, identity_mode, require_payment, notary_required, flags, notary_packet,
			assigned_notary, amount, currency, last_event, created_by, created_at, updated_at, completed_at, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = t.tx.ExecContext(ctx, query,
		p.ID, p.TenantID, p.Status, p.IdentityPolicy.Mode, p.PaymentPolicy.RequireBeforeSignature,
		p.NotaryRequired, flags, packet, p.AssignedNotary, p.Amount, p.Currency, p.LastEvent, p.CreatedBy,
		p.CreatedAt, p.UpdatedAt, p.CompletedAt, p.Version,
	)
	if err != nil {
		return fmt.Errorf("inserting procedure: %w", err)
	}

	return nil
}

func (t *procedureTx) UpdateProcedure(ctx context.Context, p *procedure.Procedure) error {
	flags, err := json.Marshal(p.Flags)
	if err != nil {
		return fmt.Errorf("encoding flags: %w", err)
	}

	query := `
		UPDATE procedures
		SET status = $1, flags = $2, assigned_notary = $3, last_event = $4, updated_at = $5,
			completed_at = $6, version = version + 1
		WHERE tenant_id = $7 AND id = $8 AND version = $9
	`

	res, err := t.tx.ExecContext(ctx, query,
		p.Status, flags, p.AssignedNotary, p.LastEvent, p.UpdatedAt, p.CompletedAt,
		t.tenantID, p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("updating procedure: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}

	if n == 0 {
		return procedure.ErrConflict
	}

	p.Version++

	return nil
}

func (t *procedureTx) ListSignatureRequests(ctx context.Context, procedureID uuid.UUID) ([]*procedure.SignatureRequest, error) {
	return t.q.listRequests(ctx, t.tenantID, procedureID)
}

type requestDocs struct {
	identity, payment, participant, signature []byte
}

func encodeRequest(r *procedure.SignatureRequest) (requestDocs, error) {
	var (
		d   requestDocs
		err error
	)

	if d.identity, err = json.Marshal(r.Identity); err != nil {
		return d, fmt.Errorf("encoding identity evidence: %w", err)
	}

	if d.payment, err = json.Marshal(r.Payment); err != nil {
		return d, fmt.Errorf("encoding payment: %w", err)
	}

	if d.participant, err = json.Marshal(r.Participant); err != nil {
		return d, fmt.Errorf("encoding participant: %w", err)
	}

	if r.Signature != nil {
		if d.signature, err = json.Marshal(r.Signature); err != nil {
			return d, fmt.Errorf("encoding signature evidence: %w", err)
		}
	}

	return d, nil
}

func (t *procedureTx) CreateSignatureRequests(ctx context.Context, reqs []*procedure.SignatureRequest) error {
	query := `
		INSERT INTO signature_requests (
			id, tenant_id, procedure_id, role, status, identity, payment, payment_percent, participant,
			signature, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	for _, r := range reqs {
		d, err := encodeRequest(r)
		if err != nil {
			return err
		}

		_, err = t.tx.ExecContext(ctx, query,
			r.ID, r.TenantID, r.ProcedureID, r.Role, r.Status, d.identity, d.payment, r.PaymentPercent,
			d.participant, d.signature, r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting signature request: %w", err)
		}
	}

	return nil
}

func (t *procedureTx) UpdateSignatureRequest(ctx context.Context, r *procedure.SignatureRequest) error {
	d, err := encodeRequest(r)
	if err != nil {
		return err
	}

	query := `
		UPDATE signature_requests
		SET status = $1, identity = $2, payment = $3, signature = $4, updated_at = $5
		WHERE tenant_id = $6 AND id = $7
	`

	_, err = t.tx.ExecContext(ctx, query,
		r.Status, d.identity, d.payment, d.signature, r.UpdatedAt, t.tenantID, r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating signature request: %w", err)
	}

	return nil
}

func (t *procedureTx) GetSigningToken(ctx context.Context, id uuid.UUID) (*procedure.SigningToken, error) {
	return t.q.getToken(ctx, id, t.tenantID)
}

func (t *procedureTx) ListSigningTokens(ctx context.Context, procedureID uuid.UUID) ([]*procedure.SigningToken, error) {
	return t.q.listTokens(ctx, t.tenantID, procedureID)
}

func (t *procedureTx) CreateSigningToken(ctx context.Context, tok *procedure.SigningToken) error {
	query := `
		INSERT INTO signing_tokens (
			id, tenant_id, procedure_id, signature_request_id, role, status, attempts, expires_at, used_at,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := t.tx.ExecContext(ctx, query,
		tok.ID, tok.TenantID, tok.ProcedureID, tok.SignatureRequestID, tok.Role, tok.Status, tok.Attempts,
		tok.ExpiresAt, tok.UsedAt, tok.CreatedAt, tok.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting signing token: %w", err)
	}

	return nil
}

func (t *procedureTx) UpdateSigningToken(ctx context.Context, tok *procedure.SigningToken) error {
	query := `
		UPDATE signing_tokens
		SET status = $1, attempts = $2, used_at = $3, updated_at = $4
		WHERE tenant_id = $5 AND id = $6
	`

	_, err := t.tx.ExecContext(ctx, query, tok.Status, tok.Attempts, tok.UsedAt, tok.UpdatedAt, t.tenantID, tok.ID)
	if err != nil {
		return fmt.Errorf("updating signing token: %w", err)
	}

	return nil
}

func (t *procedureTx) GetPayment(ctx context.Context, procedureID uuid.UUID) (*procedure.Payment, error) {
	return t.q.getPayment(ctx, t.tenantID, procedureID)
}

func (t *procedureTx) SavePayment(ctx context.Context, p *procedure.Payment) error {
	query := `
		INSERT INTO procedure_payments (procedure_id, tenant_id, kind, required_percent, paid_percent, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (procedure_id) DO UPDATE
		SET paid_percent = EXCLUDED.paid_percent, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	`

	_, err := t.tx.ExecContext(ctx, query,
		p.ProcedureID, p.TenantID, p.Kind, p.RequiredPercent, p.PaidPercent, p.Status, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving payment aggregate: %w", err)
	}

	return nil
}

func (t *procedureTx) GetGrant(ctx context.Context, id uuid.UUID) (*procedure.AccessGrant, error) {
	return t.q.getGrant(ctx, id, t.tenantID)
}

func (t *procedureTx) CreateGrant(ctx context.Context, g *procedure.AccessGrant) error {
	scopes, err := json.Marshal(g.Scopes)
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}

	query := `
		INSERT INTO access_grants (id, tenant_id, procedure_id, grantee_uid, scopes, status, expires_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = t.tx.ExecContext(ctx, query,
		g.ID, g.TenantID, g.ProcedureID, g.GranteeUID, scopes, g.Status, g.ExpiresAt, g.CreatedBy, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting access grant: %w", err)
	}

	return nil
}

func (t *procedureTx) UpdateGrant(ctx context.Context, g *procedure.AccessGrant) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE access_grants SET status = $1, expires_at = $2 WHERE tenant_id = $3 AND id = $4`,
		g.Status, g.ExpiresAt, t.tenantID, g.ID,
	)
	if err != nil {
		return fmt.Errorf("updating access grant: %w", err)
	}

	return nil
}

func (t *procedureTx) GetNotaryRequest(ctx context.Context, procedureID uuid.UUID) (*procedure.NotaryRequest, error) {
	return t.q.getNotaryRequest(ctx, t.tenantID, procedureID)
}

func (t *procedureTx) SaveNotaryRequest(ctx context.Context, n *procedure.NotaryRequest) error {
	query := `
		INSERT INTO notary_requests (
			id, tenant_id, procedure_id, notary_uid, status, opened_at, legalized_file_name, uploaded_at,
			rejected_at, reason, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (procedure_id) DO UPDATE
		SET notary_uid = EXCLUDED.notary_uid, status = EXCLUDED.status, opened_at = EXCLUDED.opened_at,
			legalized_file_name = EXCLUDED.legalized_file_name, uploaded_at = EXCLUDED.uploaded_at,
			rejected_at = EXCLUDED.rejected_at, reason = EXCLUDED.reason, updated_at = EXCLUDED.updated_at
	`

	_, err := t.tx.ExecContext(ctx, query,
		n.ID, n.TenantID, n.ProcedureID, n.NotaryUID, n.Status, n.OpenedAt, n.LegalizedFileName, n.UploadedAt,
		n.RejectedAt, n.Reason, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving notary request: %w", err)
	}

	return nil
}

func (t *procedureTx) AppendAudit(ctx context.Context, e audit.Entry) (*audit.Event, error) {
	return t.audit.Append(ctx, t.tenantID, e)
}

func (t *procedureTx) EnsureBillingCompleted(ctx context.Context, c billing.Completion) (*billing.Event, bool, error) {
	return t.billing.EnsureProcedureCompleted(ctx, t.tenantID, c)
}

func (t *procedureTx) RecordProviderEvent(ctx context.Context, r provider.Record) (*provider.Event, bool, error) {
	return t.provider.RecordEvent(ctx, t.tenantID, r)
}
