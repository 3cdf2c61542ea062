package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
)

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectProcedureColumns = `
	id, tenant_id, status, identity_mode, require_payment, notary_required, flags, notary_packet,
	assigned_notary, amount, currency, last_event, created_by, created_at, updated_at, completed_at, version
`

func scanProcedure(s scanner) (*procedure.Procedure, error) {
	var (
		p                   procedure.Procedure
		status, mode, event string
		flags, packet       []byte
		assigned            sql.NullString
	)

	if err := s.Scan(
		&p.ID, &p.TenantID, &status, &mode, &p.PaymentPolicy.RequireBeforeSignature, &p.NotaryRequired,
		&flags, &packet, &assigned, &p.Amount, &p.Currency, &event, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt, &p.Version,
	); err != nil {
		return nil, err
	}

	p.Status = procedure.Status(status)
	p.IdentityPolicy.Mode = procedure.IdentityMode(mode)
	p.LastEvent = procedure.Event(event)

	if assigned.Valid {
		p.AssignedNotary = new(assigned.String)
	}

	if err := json.Unmarshal(flags, &p.Flags); err != nil {
		return nil, fmt.Errorf("decoding flags: %w", err)
	}

	if err := json.Unmarshal(packet, &p.NotaryPacket); err != nil {
		return nil, fmt.Errorf("decoding notary packet: %w", err)
	}

	return &p, nil
}

const selectRequestColumns = `
	id, tenant_id, procedure_id, role, status, identity, payment, payment_percent, participant, signature,
	created_at, updated_at
`

func scanRequest(s scanner) (*procedure.SignatureRequest, error) {
	var (
		r                                         procedure.SignatureRequest
		role, status                              string
		identity, payment, participant, signature []byte
	)

	if err := s.Scan(
		&r.ID, &r.TenantID, &r.ProcedureID, &role, &status, &identity, &payment, &r.PaymentPercent,
		&participant, &signature, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	r.Role = procedure.Role(role)
	r.Status = procedure.RequestStatus(status)

	if err := json.Unmarshal(identity, &r.Identity); err != nil {
		return nil, fmt.Errorf("decoding identity evidence: %w", err)
	}

	if err := json.Unmarshal(payment, &r.Payment); err != nil {
		return nil, fmt.Errorf("decoding payment: %w", err)
	}

	if err := json.Unmarshal(participant, &r.Participant); err != nil {
		return nil, fmt.Errorf("decoding participant: %w", err)
	}

	if signature != nil {
		if err := json.Unmarshal(signature, &r.Signature); err != nil {
			return nil, fmt.Errorf("decoding signature evidence: %w", err)
		}
	}

	return &r, nil
}

const selectTokenColumns = `
	id, tenant_id, procedure_id, signature_request_id, role, status, attempts, expires_at, used_at,
	created_at, updated_at
`

func scanToken(s scanner) (*procedure.SigningToken, error) {
	var (
		t            procedure.SigningToken
		role, status string
	)

	if err := s.Scan(
		&t.ID, &t.TenantID, &t.ProcedureID, &t.SignatureRequestID, &role, &status, &t.Attempts,
		&t.ExpiresAt, &t.UsedAt, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	t.Role = procedure.Role(role)
	t.Status = procedure.TokenStatus(status)

	return &t, nil
}

const selectPaymentColumns = `procedure_id, tenant_id, kind, required_percent, paid_percent, status, updated_at`

func scanPayment(s scanner) (*procedure.Payment, error) {
	var (
		p      procedure.Payment
		status string
	)

	if err := s.Scan(
		&p.ProcedureID, &p.TenantID, &p.Kind, &p.RequiredPercent, &p.PaidPercent, &status, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.Status = procedure.AggregateStatus(status)

	return &p, nil
}

const selectGrantColumns = `id, tenant_id, procedure_id, grantee_uid, scopes, status, expires_at, created_by, created_at`

func scanGrant(s scanner) (*procedure.AccessGrant, error) {
	var (
		g      procedure.AccessGrant
		scopes []byte
		status string
	)

	if err := s.Scan(
		&g.ID, &g.TenantID, &g.ProcedureID, &g.GranteeUID, &scopes, &status, &g.ExpiresAt, &g.CreatedBy,
		&g.CreatedAt,
	); err != nil {
		return nil, err
	}

	g.Status = procedure.GrantStatus(status)

	if err := json.Unmarshal(scopes, &g.Scopes); err != nil {
		return nil, fmt.Errorf("decoding scopes: %w", err)
	}

	return &g, nil
}

const selectNotaryColumns = `
	id, tenant_id, procedure_id, notary_uid, status, opened_at, legalized_file_name, uploaded_at,
	rejected_at, reason, created_at, updated_at
`

func scanNotaryRequest(s scanner) (*procedure.NotaryRequest, error) {
	var (
		n      procedure.NotaryRequest
		status string
	)

	if err := s.Scan(
		&n.ID, &n.TenantID, &n.ProcedureID, &n.NotaryUID, &status, &n.OpenedAt, &n.LegalizedFileName,
		&n.UploadedAt, &n.RejectedAt, &n.Reason, &n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return nil, err
	}

	n.Status = procedure.NotaryRequestStatus(status)

	return &n, nil
}
