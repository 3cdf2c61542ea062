package procedure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/unpaper/internal/auth"
)

// ExpressKind is the legal form chosen in the express wizard.
type ExpressKind string

const (
	ExpressCertification ExpressKind = "cert"
	ExpressProtocol      ExpressKind = "proto"
	ExpressSimple        ExpressKind = "fes"
)

// NotaryRequired reports whether the form goes through a notary. Only the
// simple electronic signature skips it.
func (k ExpressKind) NotaryRequired() bool {
	return k != ExpressSimple
}

// PayerMode selects who pays in the express wizard.
type PayerMode string

const (
	PayerLandlord PayerMode = "landlord"
	PayerTenant   PayerMode = "tenant"
	PayerSeparate PayerMode = "separate"
)

type ExpressParams struct {
	Kind      ExpressKind
	PayerMode PayerMode
	Landlord  Party
	Tenant    Party
	// Payer is required when PayerMode is PayerSeparate.
	Payer             *Party
	DocumentVersionID uuid.UUID
	Deal              DealSnapshot
	Property          *PropertySnapshot
	Amount            decimal.Decimal
	Currency          string
}

// CreateExpress creates a procedure that requires both identity proofs and
// payment before signature, configures it and sends the invitations in one
// step.
func (s *Service) CreateExpress(ctx context.Context, actor auth.Actor, params ExpressParams) (*InviteResult, error) {
	if !actor.Can(auth.PermProcedureCreate) || !actor.Can(auth.PermProcedureSendInvites) {
		return nil, ErrForbidden
	}

	participants, err := expressParticipants(params)
	if err != nil {
		return nil, err
	}

	p, err := s.newProcedure(ctx, actor, CreateParams{
		IdentityPolicy:    IdentityPolicy{Mode: IdentityBoth},
		PaymentPolicy:     PaymentPolicy{RequireBeforeSignature: true},
		NotaryRequired:    params.Kind.NotaryRequired(),
		DocumentVersionID: params.DocumentVersionID,
		Deal:              params.Deal,
		Landlord:          new(params.Landlord),
		Tenant:            new(params.Tenant),
		Property:          params.Property,
		Amount:            params.Amount,
		Currency:          params.Currency,
	})
	if err != nil {
		return nil, err
	}

	var res *InviteResult

	err = s.inTx(ctx, actor.TenantID, p.ID, func(tx Tx) error {
		if err := s.insert(ctx, tx, actor, p); err != nil {
			return err
		}

		ready, err := s.apply(ctx, tx, p, EventConfigDone, actor.ActorUID())
		if err != nil {
			return err
		}

		res, err = s.sendInvites(ctx, tx, actor, ready, participants)

		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("express procedure created", "procedure_id", p.ID, "kind", params.Kind, "status", res.Procedure.Status)

	return res, nil
}

func expressParticipants(params ExpressParams) ([]ParticipantInput, error) {
	switch params.Kind {
	case ExpressCertification, ExpressProtocol, ExpressSimple:
	default:
		return nil, fmt.Errorf("%w: unknown express kind %q", ErrPrecondition, params.Kind)
	}

	landlord := RoleSigner
	tenant := RoleSigner

	switch params.PayerMode {
	case PayerLandlord:
		landlord = RoleSignerPayer
	case PayerTenant:
		tenant = RoleSignerPayer
	case PayerSeparate:
		if params.Payer == nil || params.Payer.Name == "" || params.Payer.Email == "" {
			return nil, fmt.Errorf("%w: separate payer needs a name and email", ErrPrecondition)
		}
	default:
		return nil, fmt.Errorf("%w: unknown payer mode %q", ErrPrecondition, params.PayerMode)
	}

	out := []ParticipantInput{
		{Participant: params.Landlord, Role: landlord},
		{Participant: params.Tenant, Role: tenant},
	}

	if params.PayerMode == PayerSeparate {
		out = append(out, ParticipantInput{Participant: *params.Payer, Role: RolePayer})
	}

	return out, nil
}
