package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrJamesThe3rd/unpaper/internal/billing"
	"github.com/MrJamesThe3rd/unpaper/internal/database"
)

type Store struct {
	db database.DBTX
}

func New(db database.DBTX) *Store {
	return &Store{db: db}
}

const selectEventColumns = `id, tenant_id, type, procedure_id, amount, currency, meta, created_at`

func scanEvent(row interface{ Scan(dest ...any) error }) (*billing.Event, error) {
	var (
		ev   billing.Event
		meta []byte
	)

	if err := row.Scan(
		&ev.ID, &ev.TenantID, &ev.Type, &ev.ProcedureID, &ev.Amount, &ev.Currency, &meta, &ev.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(meta, &ev.Meta); err != nil {
		return nil, fmt.Errorf("decoding billing meta: %w", err)
	}

	return &ev, nil
}

// EnsureProcedureCompleted records the completion event unless one already
// exists. The returned bool is true when this call created it.
func (s *Store) EnsureProcedureCompleted(ctx context.Context, tenantID string, c billing.Completion) (*billing.Event, bool, error) {
	ev := billing.NewCompletionEvent(tenantID, c)

	meta, err := json.Marshal(ev.Meta)
	if err != nil {
		return nil, false, fmt.Errorf("encoding billing meta: %w", err)
	}

	query := `
		INSERT INTO billing_events (id, tenant_id, type, procedure_id, amount, currency, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, procedure_id) WHERE type = 'procedure_completed' DO NOTHING
		RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
		ev.ID, ev.TenantID, ev.Type, ev.ProcedureID, ev.Amount, ev.Currency, meta, ev.CreatedAt,
	).Scan(&ev.ID)
	if err == nil {
		return ev, true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("inserting billing event: %w", err)
	}

	existing, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+selectEventColumns+` FROM billing_events
		WHERE tenant_id = $1 AND procedure_id = $2 AND type = $3`,
		tenantID, c.ProcedureID, billing.TypeProcedureCompleted,
	))
	if err != nil {
		return nil, false, fmt.Errorf("loading existing billing event: %w", err)
	}

	return existing, false, nil
}

func (s *Store) ListEvents(ctx context.Context, tenantID string, filter billing.ListFilter) ([]*billing.Event, error) {
	query := `SELECT ` + selectEventColumns + ` FROM billing_events WHERE tenant_id = $1`

	args := []any{tenantID}
	argIdx := 2

	if filter.ProcedureID != nil {
		query += fmt.Sprintf(" AND procedure_id = $%d", argIdx)

		args = append(args, *filter.ProcedureID)
		argIdx++
	}

	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)

		args = append(args, filter.Type)
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing billing events: %w", err)
	}
	defer rows.Close()

	var events []*billing.Event

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning billing event: %w", err)
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating billing rows: %w", err)
	}

	return events, nil
}
