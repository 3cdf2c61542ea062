package document

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/auth"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=document
type Repository interface {
	// CreateVersion assigns the next version number for v.DocumentID and
	// stores v together with the audit entry.
	CreateVersion(ctx context.Context, v *Version, entry audit.Entry) error
	GetVersion(ctx context.Context, tenantID string, id uuid.UUID) (*Version, error)
	ListVersions(ctx context.Context, tenantID string, filter ListFilter) ([]*Version, error)
	VoidVersion(ctx context.Context, tenantID string, id uuid.UUID, void Void, entry audit.Entry) (*Version, error)
}

type ListFilter struct {
	DocumentID    *uuid.UUID
	DealID        string
	IncludeVoided bool
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

type PublishParams struct {
	// DocumentID groups versions. Zero starts a new document.
	DocumentID uuid.UUID
	DealID     string
	Title      string
	Content    []byte
}

// Publish freezes content as the next version of the document.
func (s *Service) Publish(ctx context.Context, actor auth.Actor, params PublishParams) (*Version, error) {
	if !actor.Can(auth.PermDocumentsWrite) {
		return nil, ErrForbidden
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, ErrMissingTitle
	}

	content, err := Canonicalize(bytes.NewReader(params.Content))
	if err != nil {
		return nil, fmt.Errorf("canonicalizing content: %w", err)
	}

	if len(content) == 0 {
		return nil, ErrEmptyContent
	}

	documentID := params.DocumentID
	if documentID == uuid.Nil {
		documentID = uuid.New()
	}

	algo, sum := Digest(content)

	v := &Version{
		ID:            uuid.New(),
		TenantID:      actor.TenantID,
		DocumentID:    documentID,
		DealID:        params.DealID,
		Title:         title,
		Hash:          sum,
		HashAlgorithm: algo,
		Content:       string(content),
		Status:        StatusPublished,
		CreatedBy:     actor.ActorUID(),
		CreatedAt:     s.now(),
	}

	entry := audit.Entry{
		Action:   audit.ActionDocumentPublished,
		ActorUID: actor.ActorUID(),
		Meta: map[string]any{
			"documentId": documentID.String(),
			"versionId":  v.ID.String(),
			"hash":       sum,
		},
		At: v.CreatedAt,
	}

	if err := s.repo.CreateVersion(ctx, v, entry); err != nil {
		return nil, fmt.Errorf("publishing version: %w", err)
	}

	return v, nil
}

// Void hides a version from new procedures. It is never renumbered or
// removed.
func (s *Service) Void(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*Version, error) {
	if !actor.Can(auth.PermDocumentsVoid) {
		return nil, ErrForbidden
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason
	}

	v, err := s.repo.GetVersion(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}

	if v.Voided() {
		return nil, ErrAlreadyVoided
	}

	void := Void{At: s.now(), By: actor.ActorUID(), Reason: reason, Scope: VoidScopeFutureUse}

	entry := audit.Entry{
		Action:   audit.ActionDocumentVoided,
		ActorUID: actor.ActorUID(),
		Meta: map[string]any{
			"versionId": id.String(),
			"version":   v.Version,
			"reason":    reason,
			"scope":     VoidScopeFutureUse,
		},
		At: void.At,
	}

	return s.repo.VoidVersion(ctx, actor.TenantID, id, void, entry)
}

func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Version, error) {
	return s.repo.GetVersion(ctx, tenantID, id)
}

// GetAvailable returns a version that a new procedure may reference.
func (s *Service) GetAvailable(ctx context.Context, tenantID string, id uuid.UUID) (*Version, error) {
	v, err := s.repo.GetVersion(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if v.Voided() {
		return nil, ErrVoided
	}

	return v, nil
}

// ListAvailable returns non-voided versions, newest first.
func (s *Service) ListAvailable(ctx context.Context, tenantID string, filter ListFilter) ([]*Version, error) {
	filter.IncludeVoided = false
	return s.repo.ListVersions(ctx, tenantID, filter)
}

// History returns every version including voided ones.
func (s *Service) History(ctx context.Context, tenantID string, filter ListFilter) ([]*Version, error) {
	filter.IncludeVoided = true
	return s.repo.ListVersions(ctx, tenantID, filter)
}
