package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const TypeProcedureCompleted Type = "procedure_completed"

// Completion describes a finished procedure to bill.
type Completion struct {
	ProcedureID uuid.UUID
	Status      string
	Amount      decimal.Decimal
	Currency    string
	// At is when the procedure completed; zero means now.
	At time.Time
}

// Event is a billable fact. At most one procedure_completed event exists
// per procedure.
type Event struct {
	ID          uuid.UUID
	TenantID    string
	Type        Type
	ProcedureID uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Meta        map[string]any
	CreatedAt   time.Time
}

// NewCompletionEvent builds the record a store persists for a completion.
func NewCompletionEvent(tenantID string, c Completion) *Event {
	at := c.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	return &Event{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Type:        TypeProcedureCompleted,
		ProcedureID: c.ProcedureID,
		Amount:      c.Amount,
		Currency:    c.Currency,
		Meta:        map[string]any{"tenantId": tenantID, "status": c.Status},
		CreatedAt:   at,
	}
}
