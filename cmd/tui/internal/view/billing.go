package view

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/billing"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
)

type BillingModel struct {
	CommonModel
	svc   *billing.Service
	actor auth.Actor

	table   table.Model
	events  []*billing.Event
	summary *billing.Summary

	loading bool
	err     error
}

func NewBillingModel(svc *billing.Service, actor auth.Actor) BillingModel {
	t := newTable([]table.Column{
		{Title: "Date", Width: 17},
		{Title: "Procedure", Width: 36},
		{Title: "Status", Width: 12},
		{Title: "Amount", Width: 16},
	})

	return BillingModel{svc: svc, actor: actor, table: t, loading: true}
}

func (m BillingModel) Title() string { return "Billing" }

func (m BillingModel) ShortHelp() string {
	return "Esc: back | r: refresh"
}

func (m BillingModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m BillingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadBillingMsg:
		m.loading = false
		m.err = msg.err
		m.events = msg.events
		m.summary = msg.summary
		m.refreshTable()

		return m, nil

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 12)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m BillingModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading billing events...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v", m.err))
	}

	currencies := make([]string, 0, len(m.summary.Totals))
	for c := range m.summary.Totals {
		currencies = append(currencies, c)
	}

	slices.Sort(currencies)

	totals := make([]string, len(currencies))
	for i, c := range currencies {
		totals[i] = FormatAmount(m.summary.Totals[c], c)
	}

	header := fmt.Sprintf("%s | %d completed | Total: %s",
		m.actor.TenantID, m.summary.Count, activeStyle(strings.Join(totals, " + ")))

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		boxed(m.table.View()),
		faint(m.ShortHelp()),
	)

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *BillingModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.events))
	for _, e := range m.events {
		status, _ := e.Meta["status"].(string)

		rows = append(rows, table.Row{
			FormatTime(e.CreatedAt),
			e.ProcedureID.String(),
			status,
			FormatAmount(e.Amount, e.Currency),
		})
	}

	m.table.SetRows(rows)
}

type loadBillingMsg struct {
	events  []*billing.Event
	summary *billing.Summary
	err     error
}

func (m BillingModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		if !m.actor.Can(auth.PermBillingRead) {
			return loadBillingMsg{err: procedure.ErrForbidden}
		}

		ctx, cancel := DbCtx()
		defer cancel()

		events, err := m.svc.List(ctx, m.actor.TenantID, billing.ListFilter{})
		if err != nil {
			return loadBillingMsg{err: err}
		}

		summary, err := m.svc.Summarize(ctx, m.actor.TenantID)
		if err != nil {
			return loadBillingMsg{err: err}
		}

		return loadBillingMsg{events: events, summary: summary}
	}
}
