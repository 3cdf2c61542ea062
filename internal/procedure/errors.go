package procedure

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrIllegalTransition matches every *IllegalTransitionError.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrForbidden is returned when the actor or grant lacks the permission
	// or scope for an operation. Nothing is written.
	ErrForbidden = errors.New("forbidden")

	// ErrPrecondition is wrapped by every business-rule rejection.
	ErrPrecondition = errors.New("precondition failed")

	// ErrToken is wrapped by every signing-token rejection.
	ErrToken = errors.New("signing token rejected")
)

var (
	ErrNotEligible                = fmt.Errorf("%w: procedure is not eligible for completion", ErrPrecondition)
	ErrInvalidPolicy              = fmt.Errorf("%w: invalid identity policy", ErrPrecondition)
	ErrDocumentUnavailable        = fmt.Errorf("%w: document version is not available", ErrPrecondition)
	ErrNoParticipants             = fmt.Errorf("%w: at least one participant is required", ErrPrecondition)
	ErrPaymentSplit               = fmt.Errorf("%w: payment percentages must add up to 100", ErrPrecondition)
	ErrIdentityPending            = fmt.Errorf("%w: identity verification pending", ErrPrecondition)
	ErrBiometricsBeforeClaveUnica = fmt.Errorf("%w: clave unica must be verified before biometrics", ErrPrecondition)
	ErrNotPayer                   = fmt.Errorf("%w: participant has no payment obligation", ErrForbidden)
	ErrPaymentPending             = fmt.Errorf("%w: payment pending", ErrPrecondition)
	ErrAlreadySigned              = fmt.Errorf("%w: participant already signed", ErrPrecondition)
	ErrMissingFileName            = fmt.Errorf("%w: legalized file name is required", ErrPrecondition)
	ErrMissingReason              = fmt.Errorf("%w: rejection reason is required", ErrPrecondition)
	ErrNotaryNotPending           = fmt.Errorf("%w: procedure is not waiting for a notary", ErrPrecondition)
)

var (
	ErrTokenInvalid = fmt.Errorf("%w: invalid signing link", ErrToken)
	ErrTokenExpired = fmt.Errorf("%w: signing link expired", ErrToken)
	ErrTokenUsed    = fmt.Errorf("%w: signing link already used", ErrToken)
	ErrTokenRevoked = fmt.Errorf("%w: signing link was replaced", ErrToken)
	ErrTokenBlocked = fmt.Errorf("%w: signing link blocked after too many attempts", ErrToken)
)

// IllegalTransitionError identifies a (status, event) pair with no entry
// in the transition table.
type IllegalTransitionError struct {
	From  Status
	Event Event
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("event %s not allowed from status %s", e.Event, e.From)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// ErrConflict is returned when a procedure changed underneath a step.
var ErrConflict = errors.New("procedure was modified concurrently")
