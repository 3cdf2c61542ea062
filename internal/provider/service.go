package provider

import "context"

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=provider
type Repository interface {
	ListEvents(ctx context.Context, tenantID string, filter ListFilter) ([]*Event, error)
}

type ListFilter struct {
	Provider string
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
