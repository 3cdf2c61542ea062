package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/unpaper/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/unpaper/internal/app"
	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/config"
)

type model struct {
	app   *app.App
	actor auth.Actor
	name  string

	currentView View

	listView    view.ListModel
	detailView  view.DetailModel
	inboxView   view.InboxModel
	billingView view.BillingModel
}

type View int

const (
	ViewMenu    View = 0
	ViewList    View = 1
	ViewDetail  View = 2
	ViewInbox   View = 3
	ViewBilling View = 4
)

func initialModel() (model, func() error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	a, err := app.Open(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}

	actor := auth.Actor{
		TenantID: cfg.Console.TenantID,
		UID:      cfg.Console.UID,
		Role:     auth.Role(cfg.Console.Role),
	}

	return model{
		app:         a,
		actor:       actor,
		name:        cfg.App.Name,
		currentView: ViewMenu,
	}, a.Close
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.currentView == ViewMenu {
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewList
				m.listView = view.NewListModel(m.app.Procedures, m.actor)

				return m, m.listView.Init()
			case "2":
				m.currentView = ViewInbox
				m.inboxView = view.NewInboxModel(m.app.Procedures, m.actor)

				return m, m.inboxView.Init()
			case "3":
				m.currentView = ViewBilling
				m.billingView = view.NewBillingModel(m.app.Billing, m.actor)

				return m, m.billingView.Init()
			}
		}
	case view.OpenProcedureMsg:
		m.currentView = ViewDetail
		m.detailView = view.NewDetailModel(m.app.Procedures, m.actor, msg.ID)

		return m, m.detailView.Init()
	case view.BackMsg:
		if m.currentView == ViewDetail {
			m.currentView = ViewList
			m.listView = view.NewListModel(m.app.Procedures, m.actor)

			return m, m.listView.Init()
		}

		m.currentView = ViewMenu

		return m, nil
	}

	switch m.currentView {
	case ViewList:
		var newModel tea.Model
		newModel, cmd = m.listView.Update(msg)
		m.listView = newModel.(view.ListModel)
	case ViewDetail:
		var newModel tea.Model
		newModel, cmd = m.detailView.Update(msg)
		m.detailView = newModel.(view.DetailModel)
	case ViewInbox:
		var newModel tea.Model
		newModel, cmd = m.inboxView.Update(msg)
		m.inboxView = newModel.(view.InboxModel)
	case ViewBilling:
		var newModel tea.Model
		newModel, cmd = m.billingView.Update(msg)
		m.billingView = newModel.(view.BillingModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			fmt.Sprintf("%s console (%s as %s)\n\n", m.name, m.actor.UID, m.actor.Role) +
				"1. Procedures\n" +
				"2. Notary Inbox\n" +
				"3. Billing\n\n" +
				"q. Quit",
		)
	case ViewList:
		return m.listView.View()
	case ViewDetail:
		return m.detailView.View()
	case ViewInbox:
		return m.inboxView.View()
	case ViewBilling:
		return m.billingView.View()
	}

	return "Unknown View"
}

func main() {
	m, closeApp := initialModel()
	defer func() {
		if err := closeApp(); err != nil {
			slog.Error("failed to close storage", "error", err)
		}
	}()

	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
