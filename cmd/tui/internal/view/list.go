package view

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
)

// OpenProcedureMsg asks the console to show a procedure's detail.
type OpenProcedureMsg struct {
	ID uuid.UUID
}

type ListModel struct {
	CommonModel
	svc   *procedure.Service
	actor auth.Actor

	table      table.Model
	procedures []*procedure.Procedure

	// 0 is every status, i > 0 is procedure.Statuses[i-1].
	statusFilterIdx int
	filter          procedure.ListFilter

	loading bool
	err     error
}

func NewListModel(svc *procedure.Service, actor auth.Actor) ListModel {
	t := newTable([]table.Column{
		{Title: "Created", Width: 17},
		{Title: "Status", Width: 17},
		{Title: "Title", Width: 36},
		{Title: "Amount", Width: 16},
		{Title: "Notary", Width: 7},
	})

	return ListModel{svc: svc, actor: actor, table: t, loading: true}
}

func (m ListModel) Title() string { return "Procedures" }

func (m ListModel) ShortHelp() string {
	return "Esc: back | Enter: open | s: status filter | r: refresh"
}

func (m ListModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m ListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadListMsg:
		m.loading = false
		m.err = msg.err
		m.procedures = msg.procedures
		m.refreshTable()

		return m, nil

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "s":
			m.statusFilterIdx = (m.statusFilterIdx + 1) % (len(procedure.Statuses) + 1)
			m.filter.Status = nil

			if m.statusFilterIdx > 0 {
				m.filter.Status = new(procedure.Statuses[m.statusFilterIdx-1])
			}

			m.loading = true

			return m, m.loadCmd()
		case "enter":
			idx := m.table.Cursor()
			if idx < 0 || idx >= len(m.procedures) {
				return m, nil
			}

			id := m.procedures[idx].ID

			return m, func() tea.Msg { return OpenProcedureMsg{ID: id} }
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m ListModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading procedures...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v", m.err))
	}

	label := "All"
	if m.filter.Status != nil {
		label = string(*m.filter.Status)
	}

	header := fmt.Sprintf("%s | Filter: [s] Status: %s | %d procedures",
		m.actor.TenantID, activeStyle(label), len(m.procedures))

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		boxed(m.table.View()),
		faint(m.ShortHelp()),
	)

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *ListModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.procedures))
	for _, p := range m.procedures {
		notary := "no"
		if p.NotaryRequired {
			notary = "yes"
		}

		rows = append(rows, table.Row{
			FormatTime(p.CreatedAt),
			string(p.Status),
			p.Title(),
			FormatAmount(p.Amount, p.Currency),
			notary,
		})
	}

	m.table.SetRows(rows)
}

type loadListMsg struct {
	procedures []*procedure.Procedure
	err        error
}

func (m ListModel) loadCmd() tea.Cmd {
	filter := m.filter

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		ps, err := m.svc.List(ctx, m.actor, filter)

		return loadListMsg{procedures: ps, err: err}
	}
}
