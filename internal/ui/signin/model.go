package signin

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ggcraft/internal/theme"
)

// Sign-in methods offered by the form.
const (
	MethodPassword = "password"
	MethodToken    = "token"
)

// SubmitMsg is dispatched when the user completes the form. Either Token
// or Email and Password are set, depending on Method.
type SubmitMsg struct {
	Method   string
	Email    string
	Password string
	Token    string
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	method   string
	email    string
	password string
	token    string
}

// Model is the Bubble Tea model for the sign-in form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	err    string
	width  int
	height int
}

// New creates a new sign-in form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{method: MethodPassword},
		width:  width,
		height: height,
	}
}

// Start resets the form. errMsg, when set, is shown above the fields.
func (m *Model) Start(errMsg string) tea.Cmd {
	m.err = errMsg
	m.fb.password = ""
	m.fb.token = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the sign-in form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the sign-in form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Sign in")
	if m.err != "" {
		content += "\n" + theme.ErrorStyle.Render(m.err)
	}
	content += "\n" + m.form.View()

	return theme.PanelStyle.Render(content)
}

// Err returns the message shown above the fields.
func (m Model) Err() string {
	return m.err
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	fb := m.fb
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Method").
				Options(
					huh.NewOption("Email and password", MethodPassword),
					huh.NewOption("Access token", MethodToken),
				).
				Value(&m.fb.method),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&m.fb.email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(validateRequired("Password")),
		).WithHideFunc(func() bool { return fb.method != MethodPassword }),
		huh.NewGroup(
			huh.NewInput().
				Title("Access token").
				Placeholder("paste a bearer token").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.token).
				Validate(validateRequired("Token")),
		).WithHideFunc(func() bool { return fb.method != MethodToken }),
	).WithWidth(m.formWidth())
}

func (m Model) handleSubmit() tea.Cmd {
	msg := SubmitMsg{Method: m.fb.method}
	switch m.fb.method {
	case MethodToken:
		msg.Token = strings.TrimSpace(m.fb.token)
	default:
		msg.Email = strings.TrimSpace(m.fb.email)
		msg.Password = m.fb.password
	}
	return func() tea.Msg { return msg }
}

func (m Model) formWidth() int {
	w := m.width - 8
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateEmail(s string) error {
	if err := validateRequired("Email")(s); err != nil {
		return err
	}
	if !strings.Contains(s, "@") {
		return fmt.Errorf("enter a valid email address")
	}
	return nil
}
