package procedure

import (
	"time"

	"github.com/google/uuid"
)

const RequiredPercent = 100

type AggregateStatus string

const (
	AggregatePending AggregateStatus = "pending"
	AggregatePaid    AggregateStatus = "paid"
)

// Payment is the procedure-level aggregate of every payer's share.
type Payment struct {
	ProcedureID     uuid.UUID
	TenantID        string
	Kind            string
	RequiredPercent int
	PaidPercent     int
	Status          AggregateStatus
	UpdatedAt       time.Time
}

func newPayment(p *Procedure, now time.Time) *Payment {
	return &Payment{
		ProcedureID:     p.ID,
		TenantID:        p.TenantID,
		Kind:            "procedure",
		RequiredPercent: RequiredPercent,
		Status:          AggregatePending,
		UpdatedAt:       now,
	}
}

// add accumulates a payer's share, capped at the required percent, and
// reports whether the aggregate is now paid.
func (p *Payment) add(percent int, now time.Time) bool {
	p.PaidPercent = min(p.PaidPercent+percent, p.RequiredPercent)
	p.UpdatedAt = now

	if p.PaidPercent >= p.RequiredPercent {
		p.Status = AggregatePaid
	}

	return p.Status == AggregatePaid
}

func (p *Payment) Paid() bool {
	return p != nil && p.Status == AggregatePaid
}
