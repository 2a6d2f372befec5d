package help

import (
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ggcraft/internal/keys"
	"github.com/nhle/ggcraft/internal/theme"
	"github.com/nhle/ggcraft/internal/ui/command"
)

// channelStates explains the channel status shown in the header.
var channelStates = [][2]string{
	{"online", "receiving notifications"},
	{"connecting", "first connect after sign-in"},
	{"retrying (n)", "connection lost, attempt n pending"},
	{"failed", "gave up; run :reconnect"},
	{"offline", "signed out or stopped"},
}

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	m.help.Width = m.width - 4
	m.help.ShowAll = true

	rows := []string{
		titleStyle.Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
		"",
		titleStyle.Render("Commands"),
	}
	for _, c := range command.Commands {
		rows = append(rows, term(":"+c.Name, c.Desc))
	}
	rows = append(rows, "", titleStyle.Render("Channel"))
	for _, s := range channelStates {
		rows = append(rows, term(s[0], s[1]))
	}
	content := lipgloss.JoinVertical(lipgloss.Left, rows...)

	return theme.PanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}

func term(name, desc string) string {
	return lipgloss.NewStyle().Foreground(theme.ColorBlue).Width(14).Render(name) +
		lipgloss.NewStyle().Foreground(theme.ColorGray).Render(desc)
}
