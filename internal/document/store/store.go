package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"maps"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	auditStore "github.com/MrJamesThe3rd/unpaper/internal/audit/store"
	"github.com/MrJamesThe3rd/unpaper/internal/document"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectVersionColumns = `
	id, tenant_id, document_id, deal_id, title, version, hash, hash_algorithm, content, status,
	created_by, created_at, voided_at, voided_by, void_reason, void_scope
`

func scanVersion(row interface{ Scan(dest ...any) error }) (*document.Version, error) {
	var (
		v      document.Version
		status string
	)

	if err := row.Scan(
		&v.ID, &v.TenantID, &v.DocumentID, &v.DealID, &v.Title, &v.Version, &v.Hash, &v.HashAlgorithm,
		&v.Content, &status, &v.CreatedBy, &v.CreatedAt, &v.VoidedAt, &v.VoidedBy, &v.VoidReason, &v.VoidScope,
	); err != nil {
		return nil, err
	}

	v.Status = document.Status(status)

	return &v, nil
}

// documentLockKey serializes version numbering per document.
func documentLockKey(tenantID string, documentID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write([]byte("document:" + tenantID + ":"))
	h.Write(documentID[:])

	return int64(h.Sum64())
}

func (s *Store) CreateVersion(ctx context.Context, v *document.Version, entry audit.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning publish tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", documentLockKey(v.TenantID, v.DocumentID)); err != nil {
		return fmt.Errorf("acquiring document lock: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM document_versions WHERE tenant_id = $1 AND document_id = $2`,
		v.TenantID, v.DocumentID,
	).Scan(&v.Version)
	if err != nil {
		return fmt.Errorf("computing next version: %w", err)
	}

	query := `
		INSERT INTO document_versions (
			id, tenant_id, document_id, deal_id, title, version, hash, hash_algorithm, content, status,
			created_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	if _, err := tx.ExecContext(ctx, query,
		v.ID, v.TenantID, v.DocumentID, v.DealID, v.Title, v.Version, v.Hash, v.HashAlgorithm, v.Content,
		v.Status, v.CreatedBy, v.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting document version: %w", err)
	}

	entry.Meta = maps.Clone(entry.Meta)
	if entry.Meta == nil {
		entry.Meta = map[string]any{}
	}

	entry.Meta["version"] = v.Version

	if _, err := auditStore.New(tx).Append(ctx, v.TenantID, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing publish: %w", err)
	}

	return nil
}

func (s *Store) GetVersion(ctx context.Context, tenantID string, id uuid.UUID) (*document.Version, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx,
		`SELECT `+selectVersionColumns+` FROM document_versions WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, document.ErrNotFound
		}

		return nil, fmt.Errorf("getting document version: %w", err)
	}

	return v, nil
}

func (s *Store) ListVersions(ctx context.Context, tenantID string, filter document.ListFilter) ([]*document.Version, error) {
	query := `SELECT ` + selectVersionColumns + ` FROM document_versions WHERE tenant_id = $1`

	args := []any{tenantID}
	argIdx := 2

	if filter.DocumentID != nil {
		query += fmt.Sprintf(" AND document_id = $%d", argIdx)

		args = append(args, *filter.DocumentID)
		argIdx++
	}

	if filter.DealID != "" {
		query += fmt.Sprintf(" AND deal_id = $%d", argIdx)

		args = append(args, filter.DealID)
	}

	if !filter.IncludeVoided {
		query += " AND voided_at IS NULL"
	}

	query += " ORDER BY created_at DESC, version DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing document versions: %w", err)
	}
	defer rows.Close()

	var versions []*document.Version

	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document version: %w", err)
		}

		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}

	return versions, nil
}

func (s *Store) VoidVersion(ctx context.Context, tenantID string, id uuid.UUID, void document.Void, entry audit.Entry) (*document.Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning void tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE document_versions
		SET voided_at = $3, voided_by = $4, void_reason = $5, void_scope = $6
		WHERE tenant_id = $1 AND id = $2 AND voided_at IS NULL
		RETURNING ` + selectVersionColumns

	v, err := scanVersion(tx.QueryRowContext(ctx, query, tenantID, id, void.At, void.By, void.Reason, void.Scope))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, voidMiss(ctx, tx, tenantID, id)
		}

		return nil, fmt.Errorf("voiding document version: %w", err)
	}

	if _, err := auditStore.New(tx).Append(ctx, tenantID, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing void: %w", err)
	}

	return v, nil
}

// voidMiss tells a missing version from one that is already voided.
func voidMiss(ctx context.Context, tx *sql.Tx, tenantID string, id uuid.UUID) error {
	var exists bool

	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM document_versions WHERE tenant_id = $1 AND id = $2)`,
		tenantID, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking document version: %w", err)
	}

	if !exists {
		return document.ErrNotFound
	}

	return document.ErrAlreadyVoided
}
