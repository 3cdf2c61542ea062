package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/database"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ procedure.Repository = (*Store)(nil)

// queries runs the reads shared by the pool and an open step.
type queries struct {
	db database.DBTX
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return procedure.ErrNotFound
	}

	return fmt.Errorf("getting %s: %w", what, err)
}

func (q queries) getProcedure(ctx context.Context, tenantID string, id uuid.UUID, lock bool) (*procedure.Procedure, error) {
	query := `SELECT ` + selectProcedureColumns + ` FROM procedures WHERE tenant_id = $1 AND id = $2`
	if lock {
		query += " FOR UPDATE"
	}

	p, err := scanProcedure(q.db.QueryRowContext(ctx, query, tenantID, id))
	if err != nil {
		return nil, notFound(err, "procedure")
	}

	return p, nil
}

func (q queries) listRequests(ctx context.Context, tenantID string, procedureID uuid.UUID) ([]*procedure.SignatureRequest, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+selectRequestColumns+` FROM signature_requests
		WHERE tenant_id = $1 AND procedure_id = $2 ORDER BY created_at, id`,
		tenantID, procedureID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing signature requests: %w", err)
	}
	defer rows.Close()

	var reqs []*procedure.SignatureRequest

	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning signature request: %w", err)
		}

		reqs = append(reqs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating signature request rows: %w", err)
	}

	return reqs, nil
}

func (q queries) getToken(ctx context.Context, id uuid.UUID, tenantID string) (*procedure.SigningToken, error) {
	query := `SELECT ` + selectTokenColumns + ` FROM signing_tokens WHERE id = $1`
	args := []any{id}

	if tenantID != "" {
		query += " AND tenant_id = $2"

		args = append(args, tenantID)
	}

	t, err := scanToken(q.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "signing token")
	}

	return t, nil
}

func (q queries) listTokens(ctx context.Context, tenantID string, procedureID uuid.UUID) ([]*procedure.SigningToken, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+selectTokenColumns+` FROM signing_tokens
		WHERE tenant_id = $1 AND procedure_id = $2 ORDER BY created_at, id`,
		tenantID, procedureID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing signing tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*procedure.SigningToken

	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning signing token: %w", err)
		}

		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating signing token rows: %w", err)
	}

	return tokens, nil
}

func (q queries) getPayment(ctx context.Context, tenantID string, procedureID uuid.UUID) (*procedure.Payment, error) {
	p, err := scanPayment(q.db.QueryRowContext(ctx,
		`SELECT `+selectPaymentColumns+` FROM procedure_payments WHERE tenant_id = $1 AND procedure_id = $2`,
		tenantID, procedureID,
	))
	if err != nil {
		return nil, notFound(err, "payment aggregate")
	}

	return p, nil
}

func (q queries) getNotaryRequest(ctx context.Context, tenantID string, procedureID uuid.UUID) (*procedure.NotaryRequest, error) {
	n, err := scanNotaryRequest(q.db.QueryRowContext(ctx,
		`SELECT `+selectNotaryColumns+` FROM notary_requests WHERE tenant_id = $1 AND procedure_id = $2`,
		tenantID, procedureID,
	))
	if err != nil {
		return nil, notFound(err, "notary request")
	}

	return n, nil
}

func (q queries) getGrant(ctx context.Context, id uuid.UUID, tenantID string) (*procedure.AccessGrant, error) {
	query := `SELECT ` + selectGrantColumns + ` FROM access_grants WHERE id = $1`
	args := []any{id}

	if tenantID != "" {
		query += " AND tenant_id = $2"

		args = append(args, tenantID)
	}

	g, err := scanGrant(q.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "access grant")
	}

	return g, nil
}

func (q queries) listGrants(ctx context.Context, where string, args ...any) ([]*procedure.AccessGrant, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+selectGrantColumns+` FROM access_grants WHERE `+where+` ORDER BY created_at, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing access grants: %w", err)
	}
	defer rows.Close()

	var grants []*procedure.AccessGrant

	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning access grant: %w", err)
		}

		grants = append(grants, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access grant rows: %w", err)
	}

	return grants, nil
}

func (s *Store) GetProcedure(ctx context.Context, tenantID string, id uuid.UUID) (*procedure.Procedure, error) {
	return queries{s.db}.getProcedure(ctx, tenantID, id, false)
}

func (s *Store) ListProcedures(ctx context.Context, tenantID string, filter procedure.ListFilter) ([]*procedure.Procedure, error) {
	query := `SELECT ` + selectProcedureColumns + ` FROM procedures WHERE tenant_id = $1`

	args := []any{tenantID}
	argIdx := 2

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.Search != "" {
		query += fmt.Sprintf(` AND (notary_packet->'deal'->>'name' ILIKE $%d
			OR notary_packet->'documentVersionRef'->>'title' ILIKE $%d
			OR id::text LIKE $%d)`, argIdx, argIdx, argIdx+1)

		args = append(args, "%"+filter.Search+"%", filter.Search+"%")
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing procedures: %w", err)
	}
	defer rows.Close()

	var out []*procedure.Procedure

	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning procedure: %w", err)
		}

		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating procedure rows: %w", err)
	}

	return out, nil
}

func (s *Store) ListSignatureRequests(ctx context.Context, tenantID string, procedureID uuid.UUID) ([]*procedure.SignatureRequest, error) {
	return queries{s.db}.listRequests(ctx, tenantID, procedureID)
}

func (s *Store) ListSigningTokens(ctx context.Context, tenantID string, procedureID uuid.UUID) ([]*procedure.SigningToken, error) {
	return queries{s.db}.listTokens(ctx, tenantID, procedureID)
}

func (s *Store) GetPayment(ctx context.Context, tenantID string, procedureID uuid.UUID) (*procedure.Payment, error) {
	return queries{s.db}.getPayment(ctx, tenantID, procedureID)
}

func (s *Store) GetNotaryRequest(ctx context.Context, tenantID string, procedureID uuid.UUID) (*procedure.NotaryRequest, error) {
	return queries{s.db}.getNotaryRequest(ctx, tenantID, procedureID)
}

func (s *Store) ListGrants(ctx context.Context, tenantID string, procedureID uuid.UUID) ([]*procedure.AccessGrant, error) {
	return queries{s.db}.listGrants(ctx, "tenant_id = $1 AND procedure_id = $2", tenantID, procedureID)
}

func (s *Store) ListGrantsByGrantee(ctx context.Context, granteeUID string) ([]*procedure.AccessGrant, error) {
	return queries{s.db}.listGrants(ctx, "grantee_uid = $1", granteeUID)
}

func (s *Store) GetSigningToken(ctx context.Context, id uuid.UUID) (*procedure.SigningToken, error) {
	return queries{s.db}.getToken(ctx, id, "")
}

func (s *Store) GetGrant(ctx context.Context, id uuid.UUID) (*procedure.AccessGrant, error) {
	return queries{s.db}.getGrant(ctx, id, "")
}

func procedureLockKey(tenantID string, procedureID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write([]byte("procedure:" + tenantID + ":"))
	h.Write(procedureID[:])

	return int64(h.Sum64())
}

// Begin opens a step holding a transaction-scoped advisory lock on the
// procedure, so concurrent steps on it run one after the other.
func (s *Store) Begin(ctx context.Context, tenantID string, procedureID uuid.UUID) (procedure.Tx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning procedure tx: %w", err)
	}

	if _, err := dbTx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", procedureLockKey(tenantID, procedureID)); err != nil {
		dbTx.Rollback()
		return nil, fmt.Errorf("acquiring procedure lock: %w", err)
	}

	return newTx(dbTx, tenantID), nil
}
