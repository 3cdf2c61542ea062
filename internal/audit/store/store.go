package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/database"
)

// Store appends and lists audit events. It runs against either the pool or
// an open transaction so appends commit together with the change they record.
type Store struct {
	db database.DBTX
}

func New(db database.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, tenantID string, e audit.Entry) (*audit.Event, error) {
	ev := audit.NewEvent(tenantID, e)

	meta, err := json.Marshal(ev.Meta)
	if err != nil {
		return nil, fmt.Errorf("encoding audit meta: %w", err)
	}

	query := `
		INSERT INTO audit_events (id, tenant_id, action, procedure_id, actor_uid, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq
	`

	err = s.db.QueryRowContext(ctx, query,
		ev.ID, ev.TenantID, ev.Action, ev.ProcedureID, ev.ActorUID, meta, ev.CreatedAt,
	).Scan(&ev.Seq)
	if err != nil {
		return nil, fmt.Errorf("appending audit event: %w", err)
	}

	return ev, nil
}

func (s *Store) ListEvents(ctx context.Context, tenantID string, filter audit.ListFilter) ([]*audit.Event, error) {
	query := `
		SELECT seq, id, tenant_id, action, procedure_id, actor_uid, meta, created_at
		FROM audit_events
		WHERE tenant_id = $1`

	args := []any{tenantID}
	argIdx := 2

	if filter.ProcedureID != nil {
		query += fmt.Sprintf(" AND procedure_id = $%d", argIdx)

		args = append(args, *filter.ProcedureID)
		argIdx++
	}

	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)

		args = append(args, filter.Action)
		argIdx++
	}

	query += " ORDER BY created_at ASC, seq ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)

		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	var events []*audit.Event

	for rows.Next() {
		var (
			ev   audit.Event
			meta []byte
		)

		if err := rows.Scan(
			&ev.Seq, &ev.ID, &ev.TenantID, &ev.Action, &ev.ProcedureID, &ev.ActorUID, &meta, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}

		if err := json.Unmarshal(meta, &ev.Meta); err != nil {
			return nil, fmt.Errorf("decoding audit meta: %w", err)
		}

		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}

	return events, nil
}
