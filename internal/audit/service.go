package audit

import (
	"context"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=audit
type Repository interface {
	ListEvents(ctx context.Context, tenantID string, filter ListFilter) ([]*Event, error)
}

type ListFilter struct {
	ProcedureID *uuid.UUID
	Action      string
	Limit       int
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

// Timeline returns a procedure's events oldest first.
func (s *Service) Timeline(ctx context.Context, tenantID string, procedureID uuid.UUID) ([]*Event, error) {
	return s.repo.ListEvents(ctx, tenantID, ListFilter{ProcedureID: &procedureID})
}
