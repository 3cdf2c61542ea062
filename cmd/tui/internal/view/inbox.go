package view

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
)

type InboxModel struct {
	CommonModel
	svc   *procedure.Service
	actor auth.Actor

	table table.Model
	items []procedure.InboxItem

	// form collects the file name or reason for event on the selected item.
	form  *huh.Form
	event procedure.Event
	item  procedure.InboxItem

	loading bool
	err     error
	status  string
}

func NewInboxModel(svc *procedure.Service, actor auth.Actor) InboxModel {
	t := newTable([]table.Column{
		{Title: "Expires", Width: 17},
		{Title: "Status", Width: 17},
		{Title: "Title", Width: 36},
		{Title: "Request", Width: 10},
		{Title: "Actions", Width: 30},
	})

	return InboxModel{svc: svc, actor: actor, table: t, loading: true}
}

func (m InboxModel) Title() string { return "Notary inbox" }

func (m InboxModel) ShortHelp() string {
	if m.form != nil {
		return "Enter: submit | Esc: cancel"
	}

	return "Esc: back | o: open | a: approve | x: reject | r: refresh"
}

func (m InboxModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m InboxModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadInboxMsg:
		m.loading = false
		m.err = msg.err
		m.items = msg.items
		m.refreshTable()

		return m, nil

	case notaryDoneMsg:
		m.status = msg.status
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
		}

		m.form = nil

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	if m.form != nil {
		return m.updateForm(msg)
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "o":
			return m.start(procedure.EventNotaryOpens)
		case "a":
			return m.start(procedure.EventNotaryUploadApprove)
		case "x":
			return m.start(procedure.EventNotaryReject)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m InboxModel) start(event procedure.Event) (tea.Model, tea.Cmd) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.items) {
		return m, nil
	}

	item := m.items[idx]
	if !slices.Contains(item.Actions, event) {
		m.status = fmt.Sprintf("%s is not available for %s", event, item.Procedure.Status)
		return m, nil
	}

	m.item = item
	m.event = event

	var field *huh.Input

	switch event {
	case procedure.EventNotaryUploadApprove:
		field = huh.NewInput().Key("value").Title("Legalized file name")
	case procedure.EventNotaryReject:
		field = huh.NewInput().Key("value").Title("Rejection reason")
	default:
		return m, m.actionCmd("")
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			field.Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("value cannot be empty")
				}

				return nil
			}),
		),
	).WithWidth(45).WithShowHelp(false)

	return m, m.form.Init()
}

func (m InboxModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
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

	return m, m.actionCmd(strings.TrimSpace(m.form.GetString("value")))
}

func (m InboxModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading inbox...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v", m.err))
	}

	header := fmt.Sprintf("%s | %d procedures awaiting notary", activeStyle(m.actor.UID), len(m.items))

	content := boxed(m.table.View())
	if m.form != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render(string(m.event) + "\n\n" + m.form.View())

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	parts := []string{lipgloss.NewStyle().PaddingBottom(1).Render(header), content}
	if m.status != "" {
		parts = append(parts, faint(m.status))
	}

	parts = append(parts, faint(m.ShortHelp()))

	return lipgloss.NewStyle().Padding(1).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m *InboxModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.items))
	for _, it := range m.items {
		request := "-"
		if it.Request != nil {
			request = string(it.Request.Status)
		}

		actions := make([]string, len(it.Actions))
		for i, a := range it.Actions {
			actions[i] = string(a)
		}

		rows = append(rows, table.Row{
			FormatTime(it.Grant.ExpiresAt),
			string(it.Procedure.Status),
			it.Procedure.Title(),
			request,
			strings.Join(actions, ","),
		})
	}

	m.table.SetRows(rows)
}

type loadInboxMsg struct {
	items []procedure.InboxItem
	err   error
}

func (m InboxModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		items, err := m.svc.NotaryInbox(ctx, m.actor)

		return loadInboxMsg{items: items, err: err}
	}
}

type notaryDoneMsg struct {
	status string
	err    error
}

func (m InboxModel) actionCmd(value string) tea.Cmd {
	grantID := m.item.Grant.ID
	event := m.event

	var in procedure.NotaryInput

	switch event {
	case procedure.EventNotaryUploadApprove:
		in.FileName = value
	case procedure.EventNotaryReject:
		in.Reason = value
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		res, err := m.svc.NotaryAction(ctx, m.actor, grantID, event, in)
		if err != nil {
			return notaryDoneMsg{err: err}
		}

		return notaryDoneMsg{status: fmt.Sprintf("%s: procedure now %s", event, res.Procedure.Status)}
	}
}
