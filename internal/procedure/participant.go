package procedure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/billing"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
)

// SigningSession is what a participant sees when opening a signing link.
type SigningSession struct {
	Procedure        *Procedure
	Request          *SignatureRequest
	Token            *SigningToken
	Payment          *Payment
	IdentityVerified bool
	// SignBlocker is the reason signing is not possible yet, nil when the
	// participant can sign.
	SignBlocker error
}

// OpenSigningSession resolves a link without counting an attempt.
func (s *Service) OpenSigningSession(ctx context.Context, tokenID uuid.UUID) (*SigningSession, error) {
	t, err := s.lookupToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	if err := t.check(s.now()); err != nil {
		return nil, err
	}

	p, err := s.repo.GetProcedure(ctx, t.TenantID, t.ProcedureID)
	if err != nil {
		return nil, err
	}

	reqs, err := s.repo.ListSignatureRequests(ctx, t.TenantID, t.ProcedureID)
	if err != nil {
		return nil, err
	}

	r := findRequest(reqs, t.SignatureRequestID)
	if r == nil {
		return nil, ErrTokenInvalid
	}

	pay, err := s.repo.GetPayment(ctx, t.TenantID, t.ProcedureID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return &SigningSession{
		Procedure:        p,
		Request:          r,
		Token:            t,
		Payment:          pay,
		IdentityVerified: IsIdentityVerified(p.IdentityPolicy.Mode, r.Identity),
		SignBlocker:      signGate(p, r, pay),
	}, nil
}

func (s *Service) lookupToken(ctx context.Context, tokenID uuid.UUID) (*SigningToken, error) {
	t, err := s.repo.GetSigningToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenInvalid
		}

		return nil, fmt.Errorf("loading signing token: %w", err)
	}

	return t, nil
}

// participant is the state a token-authenticated step works on.
type participant struct {
	procedure *Procedure
	requests  []*SignatureRequest
	request   *SignatureRequest
	token     *SigningToken
}

func (pt participant) uid() string {
	return participantUID(pt.request.ID)
}

func participantUID(requestID uuid.UUID) string {
	return "participant:" + requestID.String()
}

// withToken registers one use of the token, committed on its own so that
// failed steps count against the attempt cap, then runs fn in the token's
// procedure transaction.
func (s *Service) withToken(ctx context.Context, tokenID uuid.UUID, fn func(tx Tx, pt participant) error) error {
	ref, err := s.lookupToken(ctx, tokenID)
	if err != nil {
		return err
	}

	err = s.inTx(ctx, ref.TenantID, ref.ProcedureID, func(tx Tx) error {
		return s.useToken(ctx, tx, tokenID)
	})
	if err != nil {
		return err
	}

	return s.inTx(ctx, ref.TenantID, ref.ProcedureID, func(tx Tx) error {
		t, err := tx.GetSigningToken(ctx, tokenID)
		if err != nil {
			return fmt.Errorf("loading signing token: %w", err)
		}

		if err := t.check(s.now()); err != nil {
			return err
		}

		p, err := tx.GetProcedure(ctx, t.ProcedureID)
		if err != nil {
			return err
		}

		reqs, err := tx.ListSignatureRequests(ctx, t.ProcedureID)
		if err != nil {
			return fmt.Errorf("listing signature requests: %w", err)
		}

		r := findRequest(reqs, t.SignatureRequestID)
		if r == nil {
			return ErrTokenInvalid
		}

		return fn(tx, participant{procedure: p, requests: reqs, request: r, token: t})
	})
}

// useToken counts an attempt. A token found expired or over the cap is moved
// to its end state and that change is kept even though the use fails.
func (s *Service) useToken(ctx context.Context, tx Tx, tokenID uuid.UUID) error {
	t, err := tx.GetSigningToken(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("loading signing token: %w", err)
	}

	changed, useErr := t.use(s.now(), s.settings.MaxAttempts)
	if !changed {
		return useErr
	}

	if err := tx.UpdateSigningToken(ctx, t); err != nil {
		return fmt.Errorf("updating signing token: %w", err)
	}

	if useErr == nil {
		return nil
	}

	if t.Status == TokenBlocked {
		if err := s.auditBlocked(ctx, tx, t); err != nil {
			return err
		}
	}

	return &keepError{err: useErr}
}

func (s *Service) auditBlocked(ctx context.Context, tx Tx, t *SigningToken) error {
	id := t.ProcedureID

	_, err := tx.AppendAudit(ctx, audit.Entry{
		Action:      audit.ActionTokenBlocked,
		ProcedureID: &id,
		ActorUID:    participantUID(t.SignatureRequestID),
		Meta: map[string]any{
			"signatureRequestId": t.SignatureRequestID.String(),
			"attempts":           t.Attempts,
		},
		At: s.now(),
	})
	if err != nil {
		return fmt.Errorf("appending audit: %w", err)
	}

	return nil
}

type IdentityResult struct {
	Procedure *Procedure
	Request   *SignatureRequest
	Verified  bool
}

// RecordIdentityEvidence stores one identity proof for the link's
// participant. Biometrics are only accepted after clave unica. When every
// participant is verified and the procedure waits on identity, IDENTITY_OK
// fires.
func (s *Service) RecordIdentityEvidence(ctx context.Context, tokenID uuid.UUID, kind IdentityKind, ev Evidence) (*IdentityResult, error) {
	var res *IdentityResult

	err := s.withToken(ctx, tokenID, func(tx Tx, pt participant) error {
		p, r := pt.procedure, pt.request

		if !collecting(p.Status) {
			return fmt.Errorf("%w: procedure is %s", ErrPrecondition, p.Status)
		}

		if r.Status == RequestSigned {
			return ErrAlreadySigned
		}

		if ev.VerifiedAt.IsZero() {
			ev.VerifiedAt = s.now()
		}

		switch kind {
		case IdentityClaveUnica:
			r.Identity.ClaveUnica = new(ev)
		case IdentityBiometrics:
			if r.Identity.ClaveUnica == nil {
				return ErrBiometricsBeforeClaveUnica
			}

			r.Identity.Biometrics = new(ev)
		default:
			return fmt.Errorf("%w: unknown identity proof %q", ErrPrecondition, kind)
		}

		r.UpdatedAt = s.now()

		if err := tx.UpdateSignatureRequest(ctx, r); err != nil {
			return fmt.Errorf("updating signature request: %w", err)
		}

		_, err := tx.AppendAudit(ctx, s.entry(p, pt.uid(), audit.ActionIdentityEvidence, map[string]any{
			"signatureRequestId": r.ID.String(),
			"kind":               string(kind),
			"provider":           ev.Provider,
		}))
		if err != nil {
			return fmt.Errorf("appending audit: %w", err)
		}

		verified := IsIdentityVerified(p.IdentityPolicy.Mode, r.Identity)
		if verified {
			_, err := tx.AppendAudit(ctx, s.entry(p, pt.uid(), audit.ActionIdentityVerified, map[string]any{
				"signatureRequestId": r.ID.String(),
			}))
			if err != nil {
				return fmt.Errorf("appending audit: %w", err)
			}
		}

		if p.Status == StatusInIdentity && allVerified(p.IdentityPolicy.Mode, pt.requests) {
			if p, err = s.apply(ctx, tx, p, EventIdentityOK, pt.uid()); err != nil {
				return err
			}

			// Payments may have cleared while identity was pending.
			if p.Status == StatusInPayment && p.Flags.PaymentsOK {
				if p, err = s.apply(ctx, tx, p, EventPaymentsOK, pt.uid()); err != nil {
					return err
				}
			}
		}

		res = &IdentityResult{Procedure: p, Request: r, Verified: verified}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func allVerified(mode IdentityMode, reqs []*SignatureRequest) bool {
	for _, r := range reqs {
		if !IsIdentityVerified(mode, r.Identity) {
			return false
		}
	}

	return true
}

// PaymentInput is a payment confirmation from the payment provider.
type PaymentInput struct {
	Provider   string
	ExternalID string
	Payload    map[string]any
}

type PaymentResult struct {
	Procedure *Procedure
	Request   *SignatureRequest
	Payment   *Payment
	// Duplicate is set when the provider event or the participant's payment
	// was already recorded. Nothing changed.
	Duplicate bool
}

// RecordPayment marks the link participant's share paid.
func (s *Service) RecordPayment(ctx context.Context, tokenID uuid.UUID, in PaymentInput) (*PaymentResult, error) {
	var res *PaymentResult

	err := s.withToken(ctx, tokenID, func(tx Tx, pt participant) error {
		var err error

		res, err = s.recordPayment(ctx, tx, pt.procedure, pt.request, in, pt.uid())

		return err
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// RecordProviderPayment applies a payment callback that identifies the
// signature request directly, as a payment provider's webhook does.
func (s *Service) RecordProviderPayment(ctx context.Context, tenantID string, procedureID, requestID uuid.UUID, in PaymentInput) (*PaymentResult, error) {
	var res *PaymentResult

	err := s.inTx(ctx, tenantID, procedureID, func(tx Tx) error {
		p, err := tx.GetProcedure(ctx, procedureID)
		if err != nil {
			return err
		}

		reqs, err := tx.ListSignatureRequests(ctx, procedureID)
		if err != nil {
			return fmt.Errorf("listing signature requests: %w", err)
		}

		r := findRequest(reqs, requestID)
		if r == nil {
			return ErrNotFound
		}

		res, err = s.recordPayment(ctx, tx, p, r, in, "provider:"+in.Provider)

		return err
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (s *Service) recordPayment(ctx context.Context, tx Tx, p *Procedure, r *SignatureRequest, in PaymentInput, actorUID string) (*PaymentResult, error) {
	if !r.Role.Pays() {
		return nil, ErrNotPayer
	}

	if !collecting(p.Status) {
		return nil, fmt.Errorf("%w: procedure is %s", ErrPrecondition, p.Status)
	}

	if in.Provider == "" || in.ExternalID == "" {
		return nil, fmt.Errorf("%w: payment provider reference is required", ErrPrecondition)
	}

	payment, err := tx.GetPayment(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("loading payment aggregate: %w", err)
	}

	if r.Payment.Status == PaymentPaid {
		return &PaymentResult{Procedure: p, Request: r, Payment: payment, Duplicate: true}, nil
	}

	payload := map[string]any{
		"signatureRequestId": r.ID.String(),
		"percent":            r.PaymentPercent,
		"amount":             p.Amount.Mul(decimalPercent(r.PaymentPercent)).String(),
		"currency":           p.Currency,
	}
	for k, v := range in.Payload {
		payload[k] = v
	}

	_, created, err := tx.RecordProviderEvent(ctx, provider.Record{
		Provider:   in.Provider,
		ExternalID: in.ExternalID,
		Payload:    payload,
		At:         s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("recording provider event: %w", err)
	}

	if !created {
		return &PaymentResult{Procedure: p, Request: r, Payment: payment, Duplicate: true}, nil
	}

	now := s.now()
	r.Payment = ParticipantPayment{
		Status:     PaymentPaid,
		Provider:   in.Provider,
		ExternalID: in.ExternalID,
		PaidAt:     new(now),
	}
	r.UpdatedAt = now

	if err := tx.UpdateSignatureRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("updating signature request: %w", err)
	}

	cleared := payment.add(r.PaymentPercent, now)

	if err := tx.SavePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("saving payment aggregate: %w", err)
	}

	_, err = tx.AppendAudit(ctx, s.entry(p, actorUID, audit.ActionPaymentRecorded, map[string]any{
		"signatureRequestId": r.ID.String(),
		"provider":           in.Provider,
		"externalId":         in.ExternalID,
		"percent":            r.PaymentPercent,
		"paidPercent":        payment.PaidPercent,
	}))
	if err != nil {
		return nil, fmt.Errorf("appending audit: %w", err)
	}

	switch {
	case cleared && p.Status == StatusInPayment:
		if p, err = s.apply(ctx, tx, p, EventPaymentsOK, actorUID); err != nil {
			return nil, err
		}
	case cleared && !p.Flags.PaymentsOK:
		p = p.Clone()
		p.Flags.PaymentsOK = true
		p.UpdatedAt = now

		if err := tx.UpdateProcedure(ctx, p); err != nil {
			return nil, fmt.Errorf("updating procedure: %w", err)
		}
	}

	return &PaymentResult{Procedure: p, Request: r, Payment: payment}, nil
}

// signGate returns why the participant cannot sign yet, or nil.
func signGate(p *Procedure, r *SignatureRequest, payment *Payment) error {
	switch {
	case !CanTransition(p.Status, EventSignedOne):
		return &IllegalTransitionError{From: p.Status, Event: EventSignedOne}
	case r.Status == RequestSigned:
		return ErrAlreadySigned
	case !IsIdentityVerified(p.IdentityPolicy.Mode, r.Identity):
		return ErrIdentityPending
	case !r.PaymentSatisfied():
		return ErrPaymentPending
	case RequiresPaymentBeforeSignature(p) && !payment.Paid():
		return ErrPaymentPending
	default:
		return nil
	}
}

// SignatureInput is the evidence captured with a signature.
type SignatureInput struct {
	IP        string
	UserAgent string
}

type SignatureResult struct {
	Procedure *Procedure
	Request   *SignatureRequest
	// Billing is set when this signature completed the procedure.
	Billing *billing.Event
}

// RecordSignature signs for the link's participant and consumes the link.
// The last signature fires SIGNED_ALL and then OPEN_NOTARY, which either
// hands the procedure to a notary or completes it.
func (s *Service) RecordSignature(ctx context.Context, tokenID uuid.UUID, in SignatureInput) (*SignatureResult, error) {
	var res *SignatureResult

	err := s.withToken(ctx, tokenID, func(tx Tx, pt participant) error {
		p, r := pt.procedure, pt.request

		payment, err := tx.GetPayment(ctx, p.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("loading payment aggregate: %w", err)
		}

		if err := signGate(p, r, payment); err != nil {
			return err
		}

		now := s.now()
		r.Status = RequestSigned
		r.Signature = &SignatureEvidence{SignedAt: now, IP: in.IP, UserAgent: in.UserAgent}
		r.UpdatedAt = now

		if err := tx.UpdateSignatureRequest(ctx, r); err != nil {
			return fmt.Errorf("updating signature request: %w", err)
		}

		pt.token.consume(now)

		if err := tx.UpdateSigningToken(ctx, pt.token); err != nil {
			return fmt.Errorf("updating signing token: %w", err)
		}

		_, err = tx.AppendAudit(ctx, s.entry(p, pt.uid(), audit.ActionSignatureSubmitted, map[string]any{
			"signatureRequestId": r.ID.String(),
		}))
		if err != nil {
			return fmt.Errorf("appending audit: %w", err)
		}

		res = &SignatureResult{Request: r}

		if !allSigned(pt.requests) {
			res.Procedure, err = s.apply(ctx, tx, p, EventSignedOne, pt.uid())
			return err
		}

		if p, err = s.apply(ctx, tx, p, EventSignedAll, pt.uid()); err != nil {
			return err
		}

		res.Procedure = p

		if !p.NotaryRequired && !IsCompleteEligible(p) {
			return nil
		}

		res.Procedure, res.Billing, err = s.openNotary(ctx, tx, p, pt.uid())

		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("signature recorded", "procedure_id", res.Procedure.ID, "status", res.Procedure.Status)

	return res, nil
}

func allSigned(reqs []*SignatureRequest) bool {
	for _, r := range reqs {
		if r.Status != RequestSigned {
			return false
		}
	}

	return true
}

func decimalPercent(percent int) decimal.Decimal {
	return decimal.NewFromInt(int64(percent)).Div(decimal.NewFromInt(100))
}
