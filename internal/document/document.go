package document

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status of a published version. Voiding is recorded alongside, it does not
// replace the status.
type Status string

const StatusPublished Status = "published"

// VoidScopeFutureUse hides a version from new procedures while procedures
// that already reference it keep their snapshot.
const VoidScopeFutureUse = "future_use_only"

var (
	ErrNotFound      = errors.New("document version not found")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalid       = errors.New("invalid document")
	ErrEmptyContent  = fmt.Errorf("%w: content is empty", ErrInvalid)
	ErrMissingTitle  = fmt.Errorf("%w: title is required", ErrInvalid)
	ErrMissingReason = fmt.Errorf("%w: void reason is required", ErrInvalid)
	ErrVoided        = errors.New("document version is voided")
	ErrAlreadyVoided = fmt.Errorf("%w: already voided", ErrVoided)
)

// Version is a frozen, hashed revision of a contract document.
type Version struct {
	ID            uuid.UUID
	TenantID      string
	DocumentID    uuid.UUID
	DealID        string
	Title         string
	Version       int // 1-based, monotonic per document
	Hash          string
	HashAlgorithm string
	Content       string
	Status        Status
	CreatedBy     string
	CreatedAt     time.Time
	VoidedAt      *time.Time
	VoidedBy      string
	VoidReason    string
	VoidScope     string
}

func (v *Version) Voided() bool {
	return v.VoidedAt != nil
}

// Void describes a void request.
type Void struct {
	At     time.Time
	By     string
	Reason string
	Scope  string
}
