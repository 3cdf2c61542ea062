package procedure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/auth"
)

type GrantParams struct {
	GranteeUID string
	// Scopes defaults to every notary scope.
	Scopes []Scope
	// TTL defaults to the service's grant lifetime.
	TTL time.Duration
}

// GrantNotaryAccess gives a notary time-boxed access to a procedure waiting
// on a notary and assigns it to them.
func (s *Service) GrantNotaryAccess(ctx context.Context, actor auth.Actor, id uuid.UUID, params GrantParams) (*AccessGrant, error) {
	if !actor.Can(auth.PermProcedureGrantNotary) {
		return nil, ErrForbidden
	}

	if strings.TrimSpace(params.GranteeUID) == "" {
		return nil, fmt.Errorf("%w: grantee is required", ErrPrecondition)
	}

	scopes := params.Scopes
	if len(scopes) == 0 {
		scopes = AllScopes
	}

	for _, sc := range scopes {
		if !slices.Contains(AllScopes, sc) {
			return nil, fmt.Errorf("%w: unknown scope %q", ErrPrecondition, sc)
		}
	}

	ttl := params.TTL
	if ttl <= 0 {
		ttl = s.settings.GrantTTL
	}

	var out *AccessGrant

	err := s.inTx(ctx, actor.TenantID, id, func(tx Tx) error {
		p, err := tx.GetProcedure(ctx, id)
		if err != nil {
			return err
		}

		if p.Status != StatusNotaryPending {
			return fmt.Errorf("%w: procedure is %s", ErrNotaryNotPending, p.Status)
		}

		now := s.now()
		g := &AccessGrant{
			ID:          s.newID(),
			TenantID:    p.TenantID,
			ProcedureID: p.ID,
			GranteeUID:  params.GranteeUID,
			Scopes:      slices.Clone(scopes),
			Status:      GrantActive,
			ExpiresAt:   now.Add(ttl),
			CreatedBy:   actor.ActorUID(),
			CreatedAt:   now,
		}

		if err := tx.CreateGrant(ctx, g); err != nil {
			return fmt.Errorf("creating access grant: %w", err)
		}

		p = p.Clone()
		p.AssignedNotary = new(params.GranteeUID)
		p.UpdatedAt = now

		if err := tx.UpdateProcedure(ctx, p); err != nil {
			return fmt.Errorf("updating procedure: %w", err)
		}

		_, err = tx.AppendAudit(ctx, s.entry(p, actor.ActorUID(), audit.ActionGrantCreated, map[string]any{
			"grantId":    g.ID.String(),
			"granteeUid": g.GranteeUID,
			"scopes":     scopeNames(g.Scopes),
			"expiresAt":  g.ExpiresAt,
		}))
		if err != nil {
			return fmt.Errorf("appending audit: %w", err)
		}

		out = g

		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("notary access granted", "procedure_id", id, "grantee", params.GranteeUID)

	return out, nil
}

func scopeNames(scopes []Scope) []string {
	out := make([]string, len(scopes))
	for i, sc := range scopes {
		out[i] = string(sc)
	}

	return out
}

// RevokeGrant ends a grant before it expires.
func (s *Service) RevokeGrant(ctx context.Context, actor auth.Actor, grantID uuid.UUID) (*AccessGrant, error) {
	if !actor.Can(auth.PermProcedureGrantNotary) {
		return nil, ErrForbidden
	}

	ref, err := s.repo.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}

	if ref.TenantID != actor.TenantID {
		return nil, ErrNotFound
	}

	var out *AccessGrant

	err = s.inTx(ctx, ref.TenantID, ref.ProcedureID, func(tx Tx) error {
		g, err := tx.GetGrant(ctx, grantID)
		if err != nil {
			return err
		}

		if g.Status == GrantRevoked {
			out = g
			return nil
		}

		g.Status = GrantRevoked

		if err := tx.UpdateGrant(ctx, g); err != nil {
			return fmt.Errorf("revoking access grant: %w", err)
		}

		id := g.ProcedureID

		_, err = tx.AppendAudit(ctx, audit.Entry{
			Action:      audit.ActionGrantRevoked,
			ProcedureID: &id,
			ActorUID:    actor.ActorUID(),
			Meta:        map[string]any{"grantId": g.ID.String(), "granteeUid": g.GranteeUID},
			At:          s.now(),
		})
		if err != nil {
			return fmt.Errorf("appending audit: %w", err)
		}

		out = g

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// NotaryInput carries what a notary submits with an action.
type NotaryInput struct {
	// FileName of the legalized document, required to approve.
	FileName string
	// Reason is required to reject.
	Reason string
}

type NotaryResult struct {
	Procedure *Procedure
	Request   *NotaryRequest
}

// NotaryAction applies a notary event through one of the caller's grants.
// The grant must belong to the caller, be active and carry the event's
// scope; otherwise nothing changes.
func (s *Service) NotaryAction(ctx context.Context, actor auth.Actor, grantID uuid.UUID, event Event, in NotaryInput) (*NotaryResult, error) {
	scope, ok := scopeFor[event]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a notary event", ErrPrecondition, event)
	}

	ref, err := s.repo.GetGrant(ctx, grantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrForbidden
		}

		return nil, err
	}

	switch event {
	case EventNotaryUploadApprove:
		if strings.TrimSpace(in.FileName) == "" {
			return nil, ErrMissingFileName
		}
	case EventNotaryReject:
		if strings.TrimSpace(in.Reason) == "" {
			return nil, ErrMissingReason
		}
	}

	var res *NotaryResult

	err = s.inTx(ctx, ref.TenantID, ref.ProcedureID, func(tx Tx) error {
		g, err := tx.GetGrant(ctx, grantID)
		if err != nil {
			return err
		}

		if !grantAllows(actor, g, scope, s.now()) {
			return ErrForbidden
		}

		p, err := tx.GetProcedure(ctx, g.ProcedureID)
		if err != nil {
			return err
		}

		uid := actor.ActorUID()

		next, err := s.apply(ctx, tx, p, event, uid)
		if err != nil {
			return err
		}

		n, err := tx.GetNotaryRequest(ctx, p.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			n = &NotaryRequest{
				ID:          s.newID(),
				TenantID:    p.TenantID,
				ProcedureID: p.ID,
				Status:      NotaryRequestCreated,
				CreatedAt:   s.now(),
			}
		case err != nil:
			return fmt.Errorf("loading notary request: %w", err)
		}

		now := s.now()
		n.NotaryUID = uid
		n.UpdatedAt = now

		var action string

		meta := map[string]any{"grantId": g.ID.String()}

		switch event {
		case EventNotaryOpens:
			action = audit.ActionNotaryOpened
			n.Status = NotaryRequestInReview
			n.OpenedAt = new(now)
		case EventNotaryUploadApprove:
			action = audit.ActionNotaryApproved
			n.Status = NotaryRequestApproved
			n.LegalizedFileName = in.FileName
			n.UploadedAt = new(now)
			meta["fileName"] = in.FileName
		case EventNotaryReject:
			action = audit.ActionNotaryRejected
			n.Status = NotaryRequestRejected
			n.Reason = in.Reason
			n.RejectedAt = new(now)
			meta["reason"] = in.Reason
		}

		if err := tx.SaveNotaryRequest(ctx, n); err != nil {
			return fmt.Errorf("saving notary request: %w", err)
		}

		if _, err := tx.AppendAudit(ctx, s.entry(next, uid, action, meta)); err != nil {
			return fmt.Errorf("appending audit: %w", err)
		}

		res = &NotaryResult{Procedure: next, Request: n}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("notary action applied", "procedure_id", res.Procedure.ID, "event", event, "status", res.Procedure.Status)

	return res, nil
}

func grantAllows(actor auth.Actor, g *AccessGrant, scope Scope, now time.Time) bool {
	if g.TenantID != actor.TenantID && !actor.PlatformAdmin {
		return false
	}

	if g.GranteeUID != actor.UID && !actor.PlatformAdmin {
		return false
	}

	return g.Active(now) && g.HasScope(scope)
}

// InboxItem is one procedure a notary can act on.
type InboxItem struct {
	Grant     *AccessGrant
	Procedure *Procedure
	Request   *NotaryRequest
	// Actions are the notary events the grant and the current status allow.
	Actions []Event
}

// NotaryInbox lists the procedures reachable through the caller's active
// grants.
func (s *Service) NotaryInbox(ctx context.Context, actor auth.Actor) ([]InboxItem, error) {
	if !actor.Can(auth.PermNotaryRead) {
		return nil, ErrForbidden
	}

	grants, err := s.repo.ListGrantsByGrantee(ctx, actor.UID)
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}

	now := s.now()
	items := make([]InboxItem, 0, len(grants))

	for _, g := range grants {
		if !g.Active(now) || !g.HasScope(ScopeRead) {
			continue
		}

		p, err := s.repo.GetProcedure(ctx, g.TenantID, g.ProcedureID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}

			return nil, err
		}

		n, err := s.repo.GetNotaryRequest(ctx, g.TenantID, g.ProcedureID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("loading notary request: %w", err)
		}

		var actions []Event

		for _, e := range []Event{EventNotaryOpens, EventNotaryUploadApprove, EventNotaryReject} {
			if CanTransition(p.Status, e) && g.HasScope(scopeFor[e]) {
				actions = append(actions, e)
			}
		}

		items = append(items, InboxItem{Grant: g, Procedure: p, Request: n, Actions: actions})
	}

	return items, nil
}
