package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrJamesThe3rd/unpaper/internal/database"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
)

type Store struct {
	db database.DBTX
}

func New(db database.DBTX) *Store {
	return &Store{db: db}
}

const selectEventColumns = `id, tenant_id, provider, external_id, payload, created_at`

func scanEvent(row interface{ Scan(dest ...any) error }) (*provider.Event, error) {
	var (
		ev      provider.Event
		payload []byte
	)

	if err := row.Scan(&ev.ID, &ev.TenantID, &ev.Provider, &ev.ExternalID, &payload, &ev.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payload, &ev.Payload); err != nil {
		return nil, fmt.Errorf("decoding provider payload: %w", err)
	}

	return &ev, nil
}

// RecordEvent stores the interaction once per (tenant, provider, external
// id). Replays return the original event with created=false.
func (s *Store) RecordEvent(ctx context.Context, tenantID string, r provider.Record) (*provider.Event, bool, error) {
	ev := provider.NewEvent(tenantID, r)

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("encoding provider payload: %w", err)
	}

	query := `
		INSERT INTO provider_events (id, tenant_id, provider, external_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, provider, external_id) DO NOTHING
		RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
		ev.ID, ev.TenantID, ev.Provider, ev.ExternalID, payload, ev.CreatedAt,
	).Scan(&ev.ID)
	if err == nil {
		return ev, true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("inserting provider event: %w", err)
	}

	existing, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+selectEventColumns+` FROM provider_events
		WHERE tenant_id = $1 AND provider = $2 AND external_id = $3`,
		tenantID, r.Provider, r.ExternalID,
	))
	if err != nil {
		return nil, false, fmt.Errorf("loading existing provider event: %w", err)
	}

	return existing, false, nil
}

func (s *Store) ListEvents(ctx context.Context, tenantID string, filter provider.ListFilter) ([]*provider.Event, error) {
	query := `SELECT ` + selectEventColumns + ` FROM provider_events WHERE tenant_id = $1`
	args := []any{tenantID}

	if filter.Provider != "" {
		query += " AND provider = $2"

		args = append(args, filter.Provider)
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing provider events: %w", err)
	}
	defer rows.Close()

	var events []*provider.Event

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning provider event: %w", err)
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provider rows: %w", err)
	}

	return events, nil
}
