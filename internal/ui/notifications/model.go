package notifications

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ggcraft/internal/keys"
	"github.com/nhle/ggcraft/internal/model"
	"github.com/nhle/ggcraft/internal/theme"
)

// MarkReadMsg asks the app to mark one notification read.
type MarkReadMsg struct {
	ID string
}

// MarkAllReadMsg asks the app to mark every notification read.
type MarkAllReadMsg struct{}

// ClearMsg asks the app to remove every notification.
type ClearMsg struct{}

// RespondMsg asks the app to accept or reject a pending invitation.
type RespondMsg struct {
	ID     string
	Token  string
	Accept bool
}

// Model is the notification list view.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates an empty notification list.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetItems replaces the displayed notifications, keeping the cursor on
// the same record when it is still present.
func (m *Model) SetItems(items []model.Notification) tea.Cmd {
	selected := m.SelectedID()

	listItems := make([]list.Item, len(items))
	cursor := 0
	for i, n := range items {
		listItems[i] = Item{Notification: n}
		if n.ID == selected {
			cursor = i
		}
	}

	cmd := m.list.SetItems(listItems)
	m.list.Select(cursor)
	return cmd
}

// SelectedID returns the id of the focused notification, or "".
func (m Model) SelectedID() string {
	if it, ok := m.list.SelectedItem().(Item); ok {
		return it.Notification.ID
	}
	return ""
}

// Update handles key input for the list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(keyMsg, m.keys.MarkRead):
		if id := m.SelectedID(); id != "" {
			return m, emit(MarkReadMsg{ID: id})
		}
		return m, nil

	case key.Matches(keyMsg, m.keys.MarkAllRead):
		return m, emit(MarkAllReadMsg{})

	case key.Matches(keyMsg, m.keys.Clear):
		return m, emit(ClearMsg{})

	case key.Matches(keyMsg, m.keys.Accept), key.Matches(keyMsg, m.keys.Reject):
		it, ok := m.list.SelectedItem().(Item)
		if !ok || !it.Respondable() {
			return m, nil
		}
		return m, emit(RespondMsg{
			ID:     it.Notification.ID,
			Token:  it.Notification.Payload.String("token"),
			Accept: key.Matches(keyMsg, m.keys.Accept),
		})
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list or an empty state.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notifications yet.\n\nNew team activity shows up here as it happens.")
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}
