// Package tui implements the interactive conversation browser.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jordanmatta/recollect/internal/models"
	"github.com/jordanmatta/recollect/internal/storage"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	userStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("#00FF00"))

	assistantStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("#00BFFF"))
)

const listPageSize = 200

// Browser drives the bubbletea program over a store.
type Browser struct {
	store storage.Store
}

func NewBrowser(store storage.Store) *Browser {
	return &Browser{store: store}
}

func (b *Browser) Run() error {
	m := initialModel(b.store)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

type listItem struct {
	record models.DerivedRecord
}

func (i listItem) FilterValue() string {
	return i.record.Title + " " + i.record.Project
}

func (i listItem) Title() string {
	return i.record.Title
}

func (i listItem) Description() string {
	desc := fmt.Sprintf("%s | %s", i.record.Source, i.record.CreatedAt.Format("2006-01-02 15:04"))
	if i.record.Project != "" {
		desc = fmt.Sprintf("%s | %s", i.record.Project, desc)
	}
	if len(i.record.Topics) > 0 {
		desc += " | " + strings.Join(i.record.Topics, ", ")
	}
	return desc
}

type model struct {
	store      storage.Store
	list       list.Model
	viewport   viewport.Model
	search     textinput.Model
	selected   *models.DerivedRecord
	width      int
	height     int
	ready      bool
	searchMode bool
	err        error
}

func initialModel(store storage.Store) model {
	records, err := store.ListDerived(context.Background(), storage.ListFilter{Limit: listPageSize})

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true

	l := list.New(recordItems(records), delegate, 0, 0)
	l.Title = "Conversations"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	vp := viewport.New(0, 0)

	search := textinput.New()
	search.Placeholder = "keyword search"
	search.CharLimit = 120

	return model{
		store:    store,
		list:     l,
		viewport: vp,
		search:   search,
		err:      err,
	}
}

func recordItems(records []models.DerivedRecord) []list.Item {
	items := make([]list.Item, 0, len(records))
	for _, rec := range records {
		items = append(items, listItem{record: rec})
	}
	return items
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		listWidth := m.width / 3
		m.list.SetSize(listWidth, m.height-3)
		m.viewport.Width = m.width - listWidth - 4
		m.viewport.Height = m.height - 5

	case tea.KeyMsg:
		if m.searchMode {
			switch msg.String() {
			case "enter":
				m.searchMode = false
				m.runKeywordSearch(m.search.Value())
				m.search.Blur()
				return m, nil
			case "esc":
				m.searchMode = false
				m.search.Blur()
				m.resetList()
				return m, nil
			}
			m.search, cmd = m.search.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "enter":
			if item, ok := m.list.SelectedItem().(listItem); ok {
				rec := item.record
				m.selected = &rec
				m.updateViewport()
			}

		case "s":
			m.searchMode = true
			m.search.SetValue("")
			m.search.Focus()
			return m, textinput.Blink

		case "esc":
			m.resetList()
		}
	}

	m.list, cmd = m.list.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// runKeywordSearch swaps the list contents for store-side keyword matches.
func (m *model) runKeywordSearch(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		m.resetList()
		return
	}
	records, err := m.store.SearchText(context.Background(), query, listPageSize)
	if err != nil {
		m.err = err
		return
	}
	m.list.SetItems(recordItems(records))
	m.list.Title = fmt.Sprintf("Results for %q", query)
	m.list.ResetSelected()
}

func (m *model) resetList() {
	records, err := m.store.ListDerived(context.Background(), storage.ListFilter{Limit: listPageSize})
	if err != nil {
		m.err = err
		return
	}
	m.list.SetItems(recordItems(records))
	m.list.Title = "Conversations"
}

func (m *model) updateViewport() {
	if m.selected == nil {
		m.viewport.SetContent("Select a conversation to view")
		return
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render(m.selected.Title))
	content.WriteString("\n\n")
	content.WriteString(fmt.Sprintf("Source: %s\n", m.selected.Source))
	if m.selected.Project != "" {
		content.WriteString(fmt.Sprintf("Project: %s\n", m.selected.Project))
	}
	if len(m.selected.Topics) > 0 {
		content.WriteString(fmt.Sprintf("Topics: %s\n", strings.Join(m.selected.Topics, ", ")))
	}
	if m.selected.WorkspacePath != "" {
		content.WriteString(fmt.Sprintf("Workspace: %s\n", m.selected.WorkspacePath))
	}
	content.WriteString(fmt.Sprintf("Messages: %d\n", m.selected.MessageCount))
	content.WriteString(fmt.Sprintf("Created: %s\n", m.selected.CreatedAt.Format("2006-01-02 15:04:05")))
	content.WriteString("\n" + strings.Repeat("─", 40) + "\n\n")

	// Content holds "role: text" lines produced at derivation time.
	for _, line := range strings.Split(m.selected.Content, "\n") {
		switch {
		case strings.HasPrefix(line, models.RoleUser+": "):
			content.WriteString(userStyle.Render("User:"))
			content.WriteString("\n" + strings.TrimPrefix(line, models.RoleUser+": "))
		case strings.HasPrefix(line, models.RoleAssistant+": "):
			content.WriteString(assistantStyle.Render("Assistant:"))
			content.WriteString("\n" + strings.TrimPrefix(line, models.RoleAssistant+": "))
		default:
			content.WriteString(line)
		}
		content.WriteString("\n\n")
	}

	m.viewport.SetContent(content.String())
	m.viewport.GotoTop()
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("\n  Error: %v\n", m.err)
	}

	listView := paneStyle.
		Width(m.width/3 - 2).
		Height(m.height - 3).
		Render(m.list.View())

	contentView := paneStyle.
		Width(m.width - m.width/3 - 2).
		Height(m.height - 3).
		Render(m.viewport.View())

	var searchBar string
	if m.searchMode {
		searchBar = "  " + m.search.View() + "\n"
	}

	help := helpStyle.Render("  j/k: navigate • enter: select • /: filter • s: keyword search • q: quit")

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		listView,
		contentView,
	) + "\n" + searchBar + help
}
