package procedure

import (
	"time"

	"github.com/google/uuid"
)

type TokenStatus string

const (
	TokenActive  TokenStatus = "active"
	TokenUsed    TokenStatus = "used"
	TokenExpired TokenStatus = "expired"
	TokenRevoked TokenStatus = "revoked"
	TokenBlocked TokenStatus = "blocked"
)

// DefaultMaxAttempts caps how many times a signing link may be used.
const DefaultMaxAttempts = 10

// SigningToken is a single-use credential embedded in a participant's
// signing link. The ID is the secret.
type SigningToken struct {
	ID                 uuid.UUID
	TenantID           string
	ProcedureID        uuid.UUID
	SignatureRequestID uuid.UUID
	Role               Role
	Status             TokenStatus
	Attempts           int
	ExpiresAt          time.Time
	UsedAt             *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (t *SigningToken) Clone() *SigningToken {
	out := *t
	if t.UsedAt != nil {
		out.UsedAt = new(*t.UsedAt)
	}

	return &out
}

// check classifies a token without changing it.
func (t *SigningToken) check(now time.Time) error {
	switch t.Status {
	case TokenActive:
	case TokenUsed:
		return ErrTokenUsed
	case TokenExpired:
		return ErrTokenExpired
	case TokenRevoked:
		return ErrTokenRevoked
	case TokenBlocked:
		return ErrTokenBlocked
	default:
		return ErrTokenInvalid
	}

	if !now.Before(t.ExpiresAt) {
		return ErrTokenExpired
	}

	return nil
}

// use registers one attempt. When the token is found expired or over the
// attempt cap its status is moved to the matching end state and the
// returned changed flag tells the caller to persist it despite the error.
func (t *SigningToken) use(now time.Time, maxAttempts int) (changed bool, err error) {
	if err := t.check(now); err != nil {
		if t.Status == TokenActive {
			t.Status = TokenExpired
			t.UpdatedAt = now

			return true, err
		}

		return false, err
	}

	if t.Attempts >= maxAttempts {
		t.Status = TokenBlocked
		t.UpdatedAt = now

		return true, ErrTokenBlocked
	}

	t.Attempts++
	t.UpdatedAt = now

	return true, nil
}

func (t *SigningToken) consume(now time.Time) {
	t.Status = TokenUsed
	t.UsedAt = new(now)
	t.UpdatedAt = now
}
