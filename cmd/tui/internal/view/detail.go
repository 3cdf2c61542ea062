package view

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
)

type detailState int

const (
	detailStateBrowse detailState = iota
	detailStateAction
	detailStateGrant
)

// actionGrant is offered next to the state machine events while the
// procedure waits on a notary.
const actionGrant = "GRANT_NOTARY"

// operatorEvents are the events an operator fires directly. The rest come
// from participants and notaries.
var operatorEvents = map[procedure.Event]string{
	procedure.EventConfigDone:  "Mark configured",
	procedure.EventSendInvites: "Send invitations",
	procedure.EventOpenNotary:  "Open notary step",
	procedure.EventComplete:    "Complete",
	procedure.EventCancel:      "Cancel",
	procedure.EventExpire:      "Expire",
}

type DetailModel struct {
	CommonModel
	svc   *procedure.Service
	actor auth.Actor
	id    uuid.UUID

	state     detailState
	procedure *procedure.Procedure
	requests  []*procedure.SignatureRequest
	payment   *procedure.Payment
	form      *huh.Form
	// action is the choice made in the first form.
	action string

	loading bool
	err     error
	status  string
}

func NewDetailModel(svc *procedure.Service, actor auth.Actor, id uuid.UUID) DetailModel {
	return DetailModel{svc: svc, actor: actor, id: id, loading: true}
}

func (m DetailModel) Title() string { return "Procedure" }

func (m DetailModel) ShortHelp() string {
	if m.state != detailStateBrowse {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | a: action | r: refresh"
}

func (m DetailModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m DetailModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadDetailMsg:
		m.loading = false
		m.err = msg.err
		m.procedure = msg.procedure
		m.requests = msg.requests
		m.payment = msg.payment

		return m, nil

	case actionDoneMsg:
		m.status = msg.status
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
		}

		m.state = detailStateBrowse
		m.form = nil

		return m, m.loadCmd()
	}

	switch m.state {
	case detailStateAction, detailStateGrant:
		return m.updateForm(msg)
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "a":
			return m.enterActionMode()
		}
	}

	return m, nil
}

func (m DetailModel) actions() []huh.Option[string] {
	if m.procedure == nil {
		return nil
	}

	var opts []huh.Option[string]

	for _, e := range procedure.AllowedEvents(m.procedure.Status) {
		if label, ok := operatorEvents[e]; ok {
			opts = append(opts, huh.NewOption(label, string(e)))
		}
	}

	if m.procedure.Status == procedure.StatusNotaryPending {
		opts = append(opts, huh.NewOption("Grant notary access", actionGrant))
	}

	return opts
}

func (m DetailModel) enterActionMode() (tea.Model, tea.Cmd) {
	if m.procedure == nil {
		return m, nil
	}

	opts := m.actions()
	if len(opts) == 0 {
		m.status = "No operator actions from " + string(m.procedure.Status)
		return m, nil
	}

	m.action = ""
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("action").
				Title("Action").
				Options(opts...),
		),
	).WithWidth(45).WithShowHelp(false)
	m.state = detailStateAction

	return m, m.form.Init()
}

func (m DetailModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = detailStateBrowse
		m.form = nil

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	if m.state == detailStateAction {
		m.action = m.form.GetString("action")
	}

	if m.state == detailStateAction && m.action == actionGrant {
		m.form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Key("grantee").
					Title("Notary UID").
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return errors.New("notary uid cannot be empty")
						}

						return nil
					}),
			),
		).WithWidth(45).WithShowHelp(false)
		m.state = detailStateGrant

		return m, m.form.Init()
	}

	return m, m.runCmd()
}

func (m DetailModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading procedure...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v", m.err))
	}

	p := m.procedure

	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", lipgloss.NewStyle().Bold(true).Render(p.Title()))
	fmt.Fprintf(&b, "ID:        %s\n", p.ID)
	fmt.Fprintf(&b, "Status:    %s\n", activeStyle(string(p.Status)))
	fmt.Fprintf(&b, "Identity:  %s\n", p.IdentityPolicy.Mode)
	fmt.Fprintf(&b, "Payment:   before signature=%t\n", p.PaymentPolicy.RequireBeforeSignature)
	fmt.Fprintf(&b, "Notary:    required=%t", p.NotaryRequired)

	if p.AssignedNotary != nil {
		fmt.Fprintf(&b, " assigned=%s", *p.AssignedNotary)
	}

	fmt.Fprintf(&b, "\nDocument:  %s v%d %s\n", p.NotaryPacket.DocumentVersionRef.Title,
		p.NotaryPacket.DocumentVersionRef.Version, faint(p.NotaryPacket.DocumentVersionRef.Hash))
	fmt.Fprintf(&b, "Amount:    %s\n", FormatAmount(p.Amount, p.Currency))
	fmt.Fprintf(&b, "Flags:     identity=%t payments=%t signatures=%t notary=%t\n",
		p.Flags.IdentityOK, p.Flags.PaymentsOK, p.Flags.SignaturesOK, p.Flags.NotaryOK)
	fmt.Fprintf(&b, "Eligible:  %t\n", procedure.IsCompleteEligible(p))

	if m.payment != nil {
		fmt.Fprintf(&b, "Paid:      %d/%d%% (%s)\n", m.payment.PaidPercent, m.payment.RequiredPercent, m.payment.Status)
	}

	if len(m.requests) > 0 {
		b.WriteString("\nParticipants\n")

		for _, r := range m.requests {
			verified := procedure.IsIdentityVerified(p.IdentityPolicy.Mode, r.Identity)
			fmt.Fprintf(&b, "  %-24s %-13s %-8s pay=%-12s %3d%% verified=%t\n",
				r.Participant.Name, r.Role, r.Status, r.Payment.Status, r.PaymentPercent, verified)
		}
	}

	content := boxed(lipgloss.NewStyle().Padding(0, 1).Render(b.String()))

	if m.state != detailStateBrowse && m.form != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render(m.form.View())

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = faint(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content + "\n" + faint(m.ShortHelp()))
}

type loadDetailMsg struct {
	procedure *procedure.Procedure
	requests  []*procedure.SignatureRequest
	payment   *procedure.Payment
	err       error
}

func (m DetailModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		p, err := m.svc.Get(ctx, m.actor, m.id)
		if err != nil {
			return loadDetailMsg{err: err}
		}

		reqs, err := m.svc.SignatureRequests(ctx, m.actor, m.id)
		if err != nil {
			return loadDetailMsg{err: err}
		}

		pay, err := m.svc.Payment(ctx, m.actor, m.id)
		if err != nil {
			return loadDetailMsg{err: err}
		}

		return loadDetailMsg{procedure: p, requests: reqs, payment: pay}
	}
}

type actionDoneMsg struct {
	status string
	err    error
}

func (m DetailModel) runCmd() tea.Cmd {
	action := m.action

	var grantee string
	if m.state == detailStateGrant {
		grantee = strings.TrimSpace(m.form.GetString("grantee"))
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		status, err := m.run(ctx, action, grantee)

		return actionDoneMsg{status: status, err: err}
	}
}

func (m DetailModel) run(ctx context.Context, action, grantee string) (string, error) {
	if action == actionGrant {
		g, err := m.svc.GrantNotaryAccess(ctx, m.actor, m.id, procedure.GrantParams{GranteeUID: grantee})
		if err != nil {
			return "", err
		}

		return fmt.Sprintf("Granted %s access until %s", g.GranteeUID, FormatTime(g.ExpiresAt)), nil
	}

	var (
		p   *procedure.Procedure
		err error
	)

	switch procedure.Event(action) {
	case procedure.EventConfigDone:
		p, err = m.svc.Configure(ctx, m.actor, m.id)
	case procedure.EventSendInvites:
		res, ierr := m.svc.SendInvites(ctx, m.actor, m.id, nil)
		if ierr != nil {
			return "", ierr
		}

		links := make([]string, len(res.Tokens))
		for i, t := range res.Tokens {
			links[i] = t.ID.String()
		}

		return fmt.Sprintf("Now %s. Signing links: %s", res.Procedure.Status, strings.Join(links, ", ")), nil
	case procedure.EventOpenNotary:
		p, err = m.svc.OpenNotary(ctx, m.actor, m.id)
	case procedure.EventComplete:
		p, err = m.svc.Complete(ctx, m.actor, m.id)
	case procedure.EventCancel:
		p, err = m.svc.Cancel(ctx, m.actor, m.id)
	case procedure.EventExpire:
		p, err = m.svc.Expire(ctx, m.actor, m.id)
	default:
		return "", fmt.Errorf("unknown action %q", action)
	}

	if err != nil {
		return "", err
	}

	return "Now " + string(p.Status), nil
}
