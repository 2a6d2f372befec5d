package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ggcraft/internal/theme"
)

// CommandMsg is emitted when the user executes a command.
type CommandMsg string

// Command is one entry the palette offers.
type Command struct {
	Name string
	Desc string
}

// Commands lists what the palette suggests, in display order.
var Commands = []Command{
	{Name: "read all", Desc: "mark every notification read"},
	{Name: "clear", Desc: "delete all notifications"},
	{Name: "reconnect", Desc: "restart the notification channel"},
	{Name: "signin", Desc: "sign in with a token or password"},
	{Name: "signout", Desc: "sign out and close the channel"},
	{Name: "quit", Desc: "exit ggcraft"},
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a command palette that suggests Commands as the user types.
// Tab accepts the highlighted suggestion.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "read all, clear, reconnect, signout..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(names())
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

func names() []string {
	out := make([]string, len(Commands))
	for i, c := range Commands {
		out[i] = c.Name
	}
	return out
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		cmd := Resolve(m.input.Value())
		m.input.Reset()
		if cmd == "" {
			return m, nil
		}
		return m, func() tea.Msg {
			return CommandMsg(cmd)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// Resolve trims input and expands a prefix that matches exactly one
// command. Anything else is returned as typed.
func Resolve(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	matches := Matching(input)
	if len(matches) == 1 {
		return matches[0].Name
	}
	return input
}

// Matching returns the commands whose name starts with prefix.
func Matching(prefix string) []Command {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	var out []Command
	for _, c := range Commands {
		if strings.HasPrefix(c.Name, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// View renders the input above the commands that match it.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)
	nameStyle := lipgloss.NewStyle().Foreground(theme.ColorBlue).Width(12)
	descStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)

	rows := []string{titleStyle.Render("Command Palette"), m.input.View(), ""}
	for _, c := range Matching(m.input.Value()) {
		rows = append(rows, nameStyle.Render(c.Name)+descStyle.Render(c.Desc))
	}

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
