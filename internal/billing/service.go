package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=billing
type Repository interface {
	ListEvents(ctx context.Context, tenantID string, filter ListFilter) ([]*Event, error)
}

type ListFilter struct {
	ProcedureID *uuid.UUID
	Type        Type
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, tenantID string, filter ListFilter) ([]*Event, error) {
	return s.repo.ListEvents(ctx, tenantID, filter)
}

// Summary totals billed amounts per currency.
type Summary struct {
	Count  int
	Totals map[string]decimal.Decimal
}

func (s *Service) Summarize(ctx context.Context, tenantID string) (*Summary, error) {
	events, err := s.repo.ListEvents(ctx, tenantID, ListFilter{Type: TypeProcedureCompleted})
	if err != nil {
		return nil, err
	}

	sum := &Summary{Totals: make(map[string]decimal.Decimal)}

	for _, e := range events {
		sum.Count++
		sum.Totals[e.Currency] = sum.Totals[e.Currency].Add(e.Amount)
	}

	return sum, nil
}
