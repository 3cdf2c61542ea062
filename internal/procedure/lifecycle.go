package procedure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/billing"
	"github.com/MrJamesThe3rd/unpaper/internal/document"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
)

type CreateParams struct {
	IdentityPolicy    IdentityPolicy
	PaymentPolicy     PaymentPolicy
	NotaryRequired    bool
	DocumentVersionID uuid.UUID
	Deal              DealSnapshot
	Landlord          *Party
	Tenant            *Party
	Property          *PropertySnapshot
	Amount            decimal.Decimal
	Currency          string
}

// Create snapshots the deal, counterparts and document version into a new
// draft procedure.
func (s *Service) Create(ctx context.Context, actor auth.Actor, params CreateParams) (*Procedure, error) {
	if !actor.Can(auth.PermProcedureCreate) {
		return nil, ErrForbidden
	}

	p, err := s.newProcedure(ctx, actor, params)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, actor.TenantID, p.ID, func(tx Tx) error {
		return s.insert(ctx, tx, actor, p)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("procedure created", "procedure_id", p.ID, "tenant_id", p.TenantID)

	return p, nil
}

func (s *Service) newProcedure(ctx context.Context, actor auth.Actor, params CreateParams) (*Procedure, error) {
	identity := params.IdentityPolicy
	if identity.Mode == "" {
		identity.Mode = IdentityNone
	}

	if !identity.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, identity.Mode)
	}

	doc, err := s.documents.GetAvailable(ctx, actor.TenantID, params.DocumentVersionID)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) || errors.Is(err, document.ErrVoided) {
			return nil, fmt.Errorf("%w: %w", ErrDocumentUnavailable, err)
		}

		return nil, fmt.Errorf("loading document version: %w", err)
	}

	currency := params.Currency
	if currency == "" {
		currency = "UF"
	}

	now := s.now()
	packet := NotaryPacket{
		Landlord: params.Landlord,
		Tenant:   params.Tenant,
		Property: params.Property,
		Deal:     params.Deal,
		DocumentVersionRef: DocumentVersionRef{
			ID:         doc.ID,
			DocumentID: doc.DocumentID,
			Title:      doc.Title,
			Version:    doc.Version,
			Hash:       doc.Hash,
		},
		CapturedAt: now,
	}

	return &Procedure{
		ID:             s.newID(),
		TenantID:       actor.TenantID,
		Status:         StatusDraft,
		IdentityPolicy: identity,
		PaymentPolicy:  params.PaymentPolicy,
		NotaryRequired: params.NotaryRequired,
		Flags:          initialFlags(identity, params.PaymentPolicy, params.NotaryRequired),
		NotaryPacket:   packet.clone(),
		Amount:         params.Amount,
		Currency:       currency,
		CreatedBy:      actor.ActorUID(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}, nil
}

func (s *Service) insert(ctx context.Context, tx Tx, actor auth.Actor, p *Procedure) error {
	if err := tx.CreateProcedure(ctx, p); err != nil {
		return fmt.Errorf("creating procedure: %w", err)
	}

	_, err := tx.AppendAudit(ctx, s.entry(p, actor.ActorUID(), audit.ActionProcedureCreated, map[string]any{
		"dealId":    p.NotaryPacket.Deal.ID,
		"versionId": p.NotaryPacket.DocumentVersionRef.ID.String(),
	}))
	if err != nil {
		return fmt.Errorf("appending audit: %w", err)
	}

	return nil
}

// Configure marks a draft as ready to send.
func (s *Service) Configure(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Procedure, error) {
	return s.fire(ctx, actor, id, EventConfigDone)
}

// fire applies a plain event with no side effects beyond the transition.
func (s *Service) fire(ctx context.Context, actor auth.Actor, id uuid.UUID, event Event) (*Procedure, error) {
	if !actor.Can(auth.PermProcedureUpdate) {
		return nil, ErrForbidden
	}

	var out *Procedure

	err := s.inTx(ctx, actor.TenantID, id, func(tx Tx) error {
		p, err := tx.GetProcedure(ctx, id)
		if err != nil {
			return err
		}

		out, err = s.apply(ctx, tx, p, event, actor.ActorUID())

		return err
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// InviteResult carries the signing links created by SendInvites.
type InviteResult struct {
	Procedure *Procedure
	Requests  []*SignatureRequest
	Tokens    []*SigningToken
}

// SendInvites creates the signature requests when none exist, issues one
// signing link per request and fires SEND_INVITES. With no participants
// given, the packet's tenant is invited.
func (s *Service) SendInvites(ctx context.Context, actor auth.Actor, id uuid.UUID, participants []ParticipantInput) (*InviteResult, error) {
	if !actor.Can(auth.PermProcedureSendInvites) {
		return nil, ErrForbidden
	}

	var res *InviteResult

	err := s.inTx(ctx, actor.TenantID, id, func(tx Tx) error {
		p, err := tx.GetProcedure(ctx, id)
		if err != nil {
			return err
		}

		res, err = s.sendInvites(ctx, tx, actor, p, participants)

		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("invites sent", "procedure_id", id, "participants", len(res.Requests), "status", res.Procedure.Status)

	return res, nil
}

func (s *Service) sendInvites(ctx context.Context, tx Tx, actor auth.Actor, p *Procedure, participants []ParticipantInput) (*InviteResult, error) {
	if !CanTransition(p.Status, EventSendInvites) {
		return nil, &IllegalTransitionError{From: p.Status, Event: EventSendInvites}
	}

	reqs, err := tx.ListSignatureRequests(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("listing signature requests: %w", err)
	}

	if len(reqs) == 0 {
		if len(participants) == 0 {
			participants = defaultParticipants(p)
		}

		reqs, err = s.newRequests(p, participants)
		if err != nil {
			return nil, err
		}

		if err := tx.CreateSignatureRequests(ctx, reqs); err != nil {
			return nil, fmt.Errorf("creating signature requests: %w", err)
		}
	}

	if err := checkSplit(p, reqs); err != nil {
		return nil, err
	}

	if anyPayer(reqs) {
		if err := tx.SavePayment(ctx, newPayment(p, s.now())); err != nil {
			return nil, fmt.Errorf("saving payment aggregate: %w", err)
		}
	}

	tokens := make([]*SigningToken, 0, len(reqs))

	for _, r := range reqs {
		t, err := s.issueToken(ctx, tx, p, r, actor.ActorUID())
		if err != nil {
			return nil, err
		}

		tokens = append(tokens, t)
	}

	next, err := s.apply(ctx, tx, p, EventSendInvites, actor.ActorUID())
	if err != nil {
		return nil, err
	}

	_, err = tx.AppendAudit(ctx, s.entry(next, actor.ActorUID(), audit.ActionInvitesSent, map[string]any{
		"participants": len(reqs),
	}))
	if err != nil {
		return nil, fmt.Errorf("appending audit: %w", err)
	}

	return &InviteResult{Procedure: next, Requests: reqs, Tokens: tokens}, nil
}

func defaultParticipants(p *Procedure) []ParticipantInput {
	if p.NotaryPacket.Tenant == nil {
		return nil
	}

	role := RoleSigner
	if p.PaymentPolicy.RequireBeforeSignature {
		role = RoleSignerPayer
	}

	return []ParticipantInput{{Participant: *p.NotaryPacket.Tenant, Role: role}}
}

func (s *Service) newRequests(p *Procedure, participants []ParticipantInput) ([]*SignatureRequest, error) {
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}

	for _, in := range participants {
		if !in.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrPrecondition, in.Role)
		}

		if in.PaymentPercent != nil && (*in.PaymentPercent < 0 || *in.PaymentPercent > 100) {
			return nil, ErrPaymentSplit
		}
	}

	now := s.now()
	percents := assignPercents(participants)
	reqs := make([]*SignatureRequest, len(participants))

	for i, in := range participants {
		payment := PaymentNotRequired
		if in.Role.Pays() {
			payment = PaymentPending
		}

		reqs[i] = &SignatureRequest{
			ID:             s.newID(),
			TenantID:       p.TenantID,
			ProcedureID:    p.ID,
			Role:           in.Role,
			Status:         RequestPending,
			Payment:        ParticipantPayment{Status: payment},
			PaymentPercent: percents[i],
			Participant:    in.Participant,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}

	return reqs, nil
}

func anyPayer(reqs []*SignatureRequest) bool {
	for _, r := range reqs {
		if r.Role.Pays() {
			return true
		}
	}

	return false
}

// checkSplit requires the payers' shares to add up to 100 whenever the
// procedure collects any payment.
func checkSplit(p *Procedure, reqs []*SignatureRequest) error {
	if !RequiresPaymentBeforeSignature(p) && !anyPayer(reqs) {
		return nil
	}

	total := 0
	for _, r := range reqs {
		total += r.PaymentPercent
	}

	if total != RequiredPercent {
		return fmt.Errorf("%w: got %d", ErrPaymentSplit, total)
	}

	return nil
}

func (s *Service) issueToken(ctx context.Context, tx Tx, p *Procedure, r *SignatureRequest, actorUID string) (*SigningToken, error) {
	now := s.now()
	t := &SigningToken{
		ID:                 s.newID(),
		TenantID:           p.TenantID,
		ProcedureID:        p.ID,
		SignatureRequestID: r.ID,
		Role:               r.Role,
		Status:             TokenActive,
		ExpiresAt:          now.Add(s.settings.TokenTTL),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := tx.CreateSigningToken(ctx, t); err != nil {
		return nil, fmt.Errorf("creating signing token: %w", err)
	}

	_, err := tx.AppendAudit(ctx, s.entry(p, actorUID, audit.ActionTokenCreated, map[string]any{
		"signatureRequestId": r.ID.String(),
		"expiresAt":          t.ExpiresAt,
	}))
	if err != nil {
		return nil, fmt.Errorf("appending audit: %w", err)
	}

	return t, nil
}

// revokeTokens revokes every active token, or only those of one request
// when requestID is set.
func (s *Service) revokeTokens(ctx context.Context, tx Tx, p *Procedure, requestID uuid.UUID, actorUID string) error {
	tokens, err := tx.ListSigningTokens(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("listing signing tokens: %w", err)
	}

	revoked := 0

	for _, t := range tokens {
		if t.Status != TokenActive || (requestID != uuid.Nil && t.SignatureRequestID != requestID) {
			continue
		}

		t.Status = TokenRevoked
		t.UpdatedAt = s.now()

		if err := tx.UpdateSigningToken(ctx, t); err != nil {
			return fmt.Errorf("revoking signing token: %w", err)
		}

		revoked++
	}

	if revoked == 0 {
		return nil
	}

	meta := map[string]any{"count": revoked}
	if requestID != uuid.Nil {
		meta["signatureRequestId"] = requestID.String()
	}

	if _, err := tx.AppendAudit(ctx, s.entry(p, actorUID, audit.ActionTokenRevoked, meta)); err != nil {
		return fmt.Errorf("appending audit: %w", err)
	}

	return nil
}

// RegenerateLink replaces a participant's signing link. Previous active
// links stop working.
func (s *Service) RegenerateLink(ctx context.Context, actor auth.Actor, id, requestID uuid.UUID) (*SigningToken, error) {
	if !actor.Can(auth.PermProcedureSendInvites) {
		return nil, ErrForbidden
	}

	var out *SigningToken

	err := s.inTx(ctx, actor.TenantID, id, func(tx Tx) error {
		p, err := tx.GetProcedure(ctx, id)
		if err != nil {
			return err
		}

		if !collecting(p.Status) {
			return fmt.Errorf("%w: procedure is %s", ErrPrecondition, p.Status)
		}

		reqs, err := tx.ListSignatureRequests(ctx, id)
		if err != nil {
			return fmt.Errorf("listing signature requests: %w", err)
		}

		r := findRequest(reqs, requestID)
		if r == nil {
			return ErrNotFound
		}

		if r.Status == RequestSigned {
			return ErrAlreadySigned
		}

		if err := s.revokeTokens(ctx, tx, p, r.ID, actor.ActorUID()); err != nil {
			return err
		}

		out, err = s.issueToken(ctx, tx, p, r, actor.ActorUID())

		return err
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// collecting reports whether participants can still act through links.
func collecting(s Status) bool {
	switch s {
	case StatusInIdentity, StatusInPayment, StatusInSignature, StatusPartiallySigned:
		return true
	default:
		return false
	}
}

func findRequest(reqs []*SignatureRequest, id uuid.UUID) *SignatureRequest {
	for _, r := range reqs {
		if r.ID == id {
			return r
		}
	}

	return nil
}

// OpenNotary fires OPEN_NOTARY on a fully signed procedure. Without a
// notary requirement that completes it, so eligibility is enforced.
func (s *Service) OpenNotary(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Procedure, error) {
	if !actor.Can(auth.PermProcedureUpdate) {
		return nil, ErrForbidden
	}

	var out *Procedure

	err := s.inTx(ctx, actor.TenantID, id, func(tx Tx) error {
		p, err := tx.GetProcedure(ctx, id)
		if err != nil {
			return err
		}

		out, _, err = s.openNotary(ctx, tx, p, actor.ActorUID())

		return err
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (s *Service) openNotary(ctx context.Context, tx Tx, p *Procedure, actorUID string) (*Procedure, *billing.Event, error) {
	next, err := Resolve(p, EventOpenNotary)
	if err != nil {
		return nil, nil, err
	}

	if next == StatusCompleted && !IsCompleteEligible(p) {
		return nil, nil, ErrNotEligible
	}

	out, err := s.apply(ctx, tx, p, EventOpenNotary, actorUID)
	if err != nil {
		return nil, nil, err
	}

	if out.Status != StatusCompleted {
		return out, nil, nil
	}

	ev, err := s.completed(ctx, tx, out, actorUID)
	if err != nil {
		return nil, nil, err
	}

	return out, ev, nil
}

// Complete fires COMPLETE once every required gate is satisfied and records
// the billing event.
func (s *Service) Complete(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Procedure, error) {
	if !actor.Can(auth.PermProcedureUpdate) {
		return nil, ErrForbidden
	}

	var out *Procedure

	err := s.inTx(ctx, actor.TenantID, id, func(tx Tx) error {
		p, err := tx.GetProcedure(ctx, id)
		if err != nil {
			return err
		}

		if !CanTransition(p.Status, EventComplete) {
			return &IllegalTransitionError{From: p.Status, Event: EventComplete}
		}

		if !IsCompleteEligible(p) {
			return ErrNotEligible
		}

		out, err = s.apply(ctx, tx, p, EventComplete, actor.ActorUID())
		if err != nil {
			return err
		}

		_, err = s.completed(ctx, tx, out, actor.ActorUID())

		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("procedure completed", "procedure_id", id, "tenant_id", actor.TenantID)

	return out, nil
}

// completed records the side effects of reaching completed: the billing
// event (once per procedure) and the completion notification.
func (s *Service) completed(ctx context.Context, tx Tx, p *Procedure, actorUID string) (*billing.Event, error) {
	ev, created, err := tx.EnsureBillingCompleted(ctx, billing.Completion{
		ProcedureID: p.ID,
		Status:      string(p.Status),
		Amount:      s.settings.ProcedureFee,
		Currency:    s.settings.BillingCurrency,
		At:          p.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("recording billing completion: %w", err)
	}

	if created {
		_, err = tx.AppendAudit(ctx, s.entry(p, actorUID, audit.ActionBillingRecorded, map[string]any{
			"billingEventId": ev.ID.String(),
			"amount":         ev.Amount.String(),
			"currency":       ev.Currency,
		}))
		if err != nil {
			return nil, fmt.Errorf("appending audit: %w", err)
		}
	}

	_, _, err = tx.RecordProviderEvent(ctx, provider.Record{
		Provider:   provider.Brevo,
		ExternalID: "procedure:" + p.ID.String(),
		Payload:    map[string]any{"template": "procedure_completed", "procedureId": p.ID.String()},
		At:         p.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("recording completion notification: %w", err)
	}

	_, err = tx.AppendAudit(ctx, s.entry(p, actorUID, audit.ActionProcedureCompleted, nil))
	if err != nil {
		return nil, fmt.Errorf("appending audit: %w", err)
	}

	return ev, nil
}

// Cancel closes the procedure from any state that allows it and revokes the
// outstanding signing links.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Procedure, error) {
	return s.close(ctx, actor, id, EventCancel, audit.ActionProcedureCancelled)
}

// Expire marks a procedure whose signing window lapsed.
func (s *Service) Expire(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Procedure, error) {
	return s.close(ctx, actor, id, EventExpire, audit.ActionProcedureExpired)
}

func (s *Service) close(ctx context.Context, actor auth.Actor, id uuid.UUID, event Event, action string) (*Procedure, error) {
	if !actor.Can(auth.PermProcedureUpdate) {
		return nil, ErrForbidden
	}

	var out *Procedure

	err := s.inTx(ctx, actor.TenantID, id, func(tx Tx) error {
		p, err := tx.GetProcedure(ctx, id)
		if err != nil {
			return err
		}

		out, err = s.apply(ctx, tx, p, event, actor.ActorUID())
		if err != nil {
			return err
		}

		if err := s.revokeTokens(ctx, tx, out, uuid.Nil, actor.ActorUID()); err != nil {
			return err
		}

		_, err = tx.AppendAudit(ctx, s.entry(out, actor.ActorUID(), action, map[string]any{"from": string(p.Status)}))

		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("procedure closed", "procedure_id", id, "status", out.Status)

	return out, nil
}
