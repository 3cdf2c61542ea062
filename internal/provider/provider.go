package provider

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

const (
	Transbank = "transbank"
	Brevo     = "brevo"
)

// Record is an inbound or outbound provider interaction keyed by the
// provider's own reference.
type Record struct {
	Provider   string
	ExternalID string
	Payload    map[string]any
	// At is when the interaction happened; zero means now.
	At time.Time
}

// Event is a stored provider interaction. (TenantID, Provider, ExternalID)
// is unique.
type Event struct {
	ID         uuid.UUID
	TenantID   string
	Provider   string
	ExternalID string
	Payload    map[string]any
	CreatedAt  time.Time
}

func NewEvent(tenantID string, r Record) *Event {
	at := r.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	payload := maps.Clone(r.Payload)
	if payload == nil {
		payload = map[string]any{}
	}

	return &Event{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Provider:   r.Provider,
		ExternalID: r.ExternalID,
		Payload:    payload,
		CreatedAt:  at,
	}
}
